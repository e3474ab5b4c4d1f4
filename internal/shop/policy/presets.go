package policy

import (
	"fmt"
	"os"
	"sort"

	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/pricing"
	"gopkg.in/yaml.v3"
)

const (
	PresetNegativeQuantity = "negative-quantity"
	PresetHistoryDiscount  = "history-discount"
	PresetOffPeak          = "off-peak"
	PresetCouponDivergence = "coupon-divergence"
	PresetTierBypass       = "tier-bypass"
	PresetHardened         = "hardened"

	DefaultPreset = PresetNegativeQuantity

	defaultFlagProductID    = 3
	defaultBalanceThreshold = 800
	defaultBypassProductID  = 2
)

var hiddenBalanceFlag = FlagPolicy{
	Rule:             FlagHiddenBalance,
	ProductID:        defaultFlagProductID,
	BalanceThreshold: defaultBalanceThreshold,
}

var presets = map[string]Set{
	// Default lab: no positive-quantity check, no tier check, parseInt matching.
	// The non-negative price guard is off so an integer quantity below zero credits the user.
	PresetNegativeQuantity: {
		Pricing:       pricing.Policy{Rule: pricing.RuleFlat},
		Authorization: Authorization{Validate: pricing.FieldFinal, Charge: pricing.FieldFinal},
		Quantity:      QuantityUnchecked,
		Tier:          TierPolicy{Mode: TierSkip},
		Flag:          hiddenBalanceFlag,
		Match:         catalog.MatchLoose,
	},
	PresetHistoryDiscount: {
		Pricing:       pricing.Policy{Rule: pricing.RuleHistory},
		Authorization: Authorization{Validate: pricing.FieldFinal, Charge: pricing.FieldFinal, RequireNonNegative: true},
		Quantity:      QuantityChecked,
		Tier:          TierPolicy{Mode: TierEnforce},
		Flag:          hiddenBalanceFlag,
		Match:         catalog.MatchStrict,
	},
	PresetOffPeak: {
		Pricing:       pricing.Policy{Rule: pricing.RuleFlat, OffPeak: true},
		Authorization: Authorization{Validate: pricing.FieldFinal, Charge: pricing.FieldFinal, RequireNonNegative: true},
		Quantity:      QuantityChecked,
		Tier:          TierPolicy{Mode: TierEnforce},
		Flag:          hiddenBalanceFlag,
		Match:         catalog.MatchStrict,
	},
	// Validates the coupon price but deducts the nominal one.
	PresetCouponDivergence: {
		Pricing:       pricing.Policy{Rule: pricing.RuleFlat, Coupon: true, CouponCode: pricing.DefaultCouponCode},
		Authorization: Authorization{Validate: pricing.FieldPaid, Charge: pricing.FieldFinal, RequireNonNegative: true},
		Quantity:      QuantityChecked,
		Tier:          TierPolicy{Mode: TierEnforce},
		Flag:          FlagPolicy{Rule: FlagCouponDivergence, ProductID: defaultFlagProductID},
		Match:         catalog.MatchStrict,
	},
	PresetTierBypass: {
		Pricing:       pricing.Policy{Rule: pricing.RuleFlat},
		Authorization: Authorization{Validate: pricing.FieldFinal, Charge: pricing.FieldFinal, RequireNonNegative: true, CheckBalance: true},
		Quantity:      QuantityChecked,
		Tier:          TierPolicy{Mode: TierBypassID, BypassProductID: defaultBypassProductID},
		Flag:          hiddenBalanceFlag,
		Match:         catalog.MatchStrict,
	},
	PresetHardened: {
		Pricing:       pricing.Policy{Rule: pricing.RuleFlat, Coupon: true, CouponCode: pricing.DefaultCouponCode},
		Authorization: Authorization{Validate: pricing.FieldPaid, Charge: pricing.FieldPaid, RequireNonNegative: true, CheckBalance: true},
		Quantity:      QuantityChecked,
		Tier:          TierPolicy{Mode: TierEnforce},
		Flag:          hiddenBalanceFlag,
		Match:         catalog.MatchStrict,
		Atomic:        true,
	},
}

// Names lists the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of the named preset.
func Preset(name string) (Set, error) {
	s, ok := presets[name]
	if !ok {
		return Set{}, fmt.Errorf("unknown policy preset %q (known: %v)", name, Names())
	}
	s.Name = name
	return s, nil
}

// Load resolves the named preset and applies the YAML overrides in path, if any.
// The file may carry a top-level "preset" key that replaces name as the base.
func Load(name, path string) (Set, error) {
	if path == "" {
		s, err := Preset(name)
		if err != nil {
			return Set{}, err
		}
		return s, s.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read policy file: %w", err)
	}
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(b, &head); err != nil {
		return Set{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if head.Preset != "" {
		name = head.Preset
	}

	s, err := Preset(name)
	if err != nil {
		return Set{}, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Set{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}
