// Package pricing computes chargeable prices. All arithmetic is float64 on purpose:
// discount and quantity combinations produce the rounding artifacts the lab relies on.
package pricing

import (
	"fmt"
	"time"

	"github.com/logicshop-core/server/internal/shop/model"
)

// Rule selects the base price computation.
type Rule string

const (
	// RuleFlat: basePrice*qty, then scaled by (1 - discount/100).
	RuleFlat Rule = "flat"
	// RuleHistory: basePrice*qty, minus one unit's discount once the user has history.
	RuleHistory Rule = "history"
)

// Field names one of the two prices a quote carries.
type Field string

const (
	FieldFinal Field = "final"
	FieldPaid  Field = "paid"
)

const (
	OffPeakStartHour = 2
	OffPeakEndHour   = 4

	offPeakFactor = 0.9
	couponFactor  = 0.9

	DefaultCouponCode       = "SAVE10"
	DefaultHistoryThreshold = 2
)

type Policy struct {
	Rule Rule `yaml:"rule"`
	// OffPeak enables the extra 10% between 02:00 and 04:00 wall-clock time.
	OffPeak bool `yaml:"offPeak"`
	// Coupon enables the recognised coupon code.
	Coupon     bool   `yaml:"coupon"`
	CouponCode string `yaml:"couponCode"`
	// HistoryThreshold is the purchase count a user must exceed before RuleHistory discounts.
	HistoryThreshold int `yaml:"historyThreshold"`
}

func (p Policy) Validate() error {
	switch p.Rule {
	case RuleFlat, RuleHistory:
	default:
		return fmt.Errorf("unknown pricing rule %q", p.Rule)
	}
	if p.Coupon && p.CouponCode == "" {
		return fmt.Errorf("coupon pricing enabled without a coupon code")
	}
	return nil
}

func (f Field) Valid() bool {
	return f == FieldFinal || f == FieldPaid
}

// Clock is read once per quote.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the local wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// Quote is the outcome of pricing one purchase. FinalPrice is the nominal price,
// PaidPrice the price after the coupon. They differ only when a coupon applied.
type Quote struct {
	Subtotal        float64
	FinalPrice      float64
	PaidPrice       float64
	DiscountApplied bool
	OffPeakApplied  bool
	CouponApplied   bool
}

// Amount returns the price named by f.
func (q Quote) Amount(f Field) float64 {
	if f == FieldPaid {
		return q.PaidPrice
	}
	return q.FinalPrice
}

type Engine struct {
	policy Policy
	clock  Clock
}

func NewEngine(policy Policy, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	if policy.HistoryThreshold == 0 {
		policy.HistoryThreshold = DefaultHistoryThreshold
	}
	if policy.CouponCode == "" {
		policy.CouponCode = DefaultCouponCode
	}
	return &Engine{policy: policy, clock: clock}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Quote prices quantity units of product for user. quantity is not sanitised.
func (e *Engine) Quote(product model.Product, user model.User, quantity int, coupon string) Quote {
	q := Quote{Subtotal: product.BasePrice * float64(quantity)}
	price := q.Subtotal

	switch e.policy.Rule {
	case RuleHistory:
		if user.PurchaseCount > e.policy.HistoryThreshold && product.Discount > 0 {
			price -= product.BasePrice * (product.Discount / 100)
			q.DiscountApplied = true
		}
	default:
		if product.Discount > 0 {
			price = price * (1 - product.Discount/100)
			q.DiscountApplied = true
		}
	}

	if e.policy.OffPeak && InOffPeak(e.clock.Now()) {
		price = price * offPeakFactor
		q.OffPeakApplied = true
	}

	q.FinalPrice = price
	q.PaidPrice = price
	if e.policy.Coupon && coupon != "" && coupon == e.policy.CouponCode {
		q.PaidPrice = price * couponFactor
		q.CouponApplied = true
	}
	return q
}

// InOffPeak reports whether t falls in [02:00, 04:00).
func InOffPeak(t time.Time) bool {
	h := t.Hour()
	return h >= OffPeakStartHour && h < OffPeakEndHour
}
