// Package policy names each reproducible flaw of the purchase flow. A Set picks
// one behaviour per concern and the processor is parameterised by it.
package policy

import (
	"fmt"

	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/pricing"
)

// QuantityCheck decides whether non-positive quantities reach pricing.
type QuantityCheck string

const (
	QuantityChecked   QuantityCheck = "checked"
	QuantityUnchecked QuantityCheck = "unchecked"
)

// Allows reports whether qty passes the quantity gate.
func (q QuantityCheck) Allows(qty int) bool {
	return q == QuantityUnchecked || qty > 0
}

// TierMode selects how minimum tiers are enforced.
type TierMode string

const (
	TierEnforce  TierMode = "enforce"
	TierSkip     TierMode = "skip"
	TierBypassID TierMode = "bypass-id"
)

type TierPolicy struct {
	Mode TierMode `yaml:"mode"`
	// BypassProductID skips the tier check for one product when Mode is bypass-id.
	BypassProductID int `yaml:"bypassProductId"`
}

// Allows reports whether user may buy product under this policy.
func (t TierPolicy) Allows(product model.Product, user model.User) bool {
	switch t.Mode {
	case TierSkip:
		return true
	case TierBypassID:
		if product.ID == t.BypassProductID {
			return true
		}
	}
	return user.Tier.Satisfies(product.MinimumTier)
}

// Authorization names the amount that is validated and the amount that is deducted.
// They are allowed to differ.
type Authorization struct {
	Validate           pricing.Field `yaml:"validate"`
	Charge             pricing.Field `yaml:"charge"`
	RequireNonNegative bool          `yaml:"requireNonNegative"`
	CheckBalance       bool          `yaml:"checkBalance"`
}

// FlagRule names the unlock predicate.
type FlagRule string

const (
	// FlagHiddenBalance: product.id == ProductID && balance >= BalanceThreshold.
	FlagHiddenBalance FlagRule = "hidden-balance"
	// FlagCouponDivergence: final > limit && paid <= limit && product.id == ProductID.
	FlagCouponDivergence FlagRule = "coupon-divergence"
)

type FlagPolicy struct {
	Rule             FlagRule `yaml:"rule"`
	ProductID        int      `yaml:"productId"`
	BalanceThreshold float64  `yaml:"balanceThreshold"`
}

// Unlocked evaluates the predicate over post-commit state.
func (f FlagPolicy) Unlocked(product model.Product, user model.User, quote pricing.Quote) bool {
	if product.ID != f.ProductID {
		return false
	}
	switch f.Rule {
	case FlagHiddenBalance:
		return user.Balance >= f.BalanceThreshold
	case FlagCouponDivergence:
		return quote.FinalPrice > user.TransactionLimit && quote.PaidPrice <= user.TransactionLimit
	default:
		return false
	}
}

type Set struct {
	Name          string            `yaml:"name"`
	Pricing       pricing.Policy    `yaml:"pricing"`
	Authorization Authorization     `yaml:"authorization"`
	Quantity      QuantityCheck     `yaml:"quantity"`
	Tier          TierPolicy        `yaml:"tier"`
	Flag          FlagPolicy        `yaml:"flag"`
	Match         catalog.MatchMode `yaml:"match"`
	// Atomic serialises check and commit per user and product.
	Atomic bool `yaml:"atomic"`
}

func (s Set) Validate() error {
	if err := s.Pricing.Validate(); err != nil {
		return fmt.Errorf("policy %s: %w", s.Name, err)
	}
	if !s.Authorization.Validate.Valid() {
		return fmt.Errorf("policy %s: unknown validate field %q", s.Name, s.Authorization.Validate)
	}
	if !s.Authorization.Charge.Valid() {
		return fmt.Errorf("policy %s: unknown charge field %q", s.Name, s.Authorization.Charge)
	}
	switch s.Quantity {
	case QuantityChecked, QuantityUnchecked:
	default:
		return fmt.Errorf("policy %s: unknown quantity check %q", s.Name, s.Quantity)
	}
	switch s.Tier.Mode {
	case TierEnforce, TierSkip, TierBypassID:
	default:
		return fmt.Errorf("policy %s: unknown tier mode %q", s.Name, s.Tier.Mode)
	}
	switch s.Flag.Rule {
	case FlagHiddenBalance, FlagCouponDivergence:
	default:
		return fmt.Errorf("policy %s: unknown flag rule %q", s.Name, s.Flag.Rule)
	}
	if !s.Match.Valid() {
		return fmt.Errorf("policy %s: unknown match mode %q", s.Name, s.Match)
	}
	return nil
}
