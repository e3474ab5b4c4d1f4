package model

import "time"

// Tier classifies a user; products may require a minimum tier.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

var tierRank = map[Tier]int{
	TierStandard: 0,
	TierPremium:  1,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Satisfies reports whether a user of tier t may buy a product requiring min.
func (t Tier) Satisfies(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

// Product is returned verbatim by the list endpoint, stock and discount included.
type Product struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	BasePrice   float64 `json:"basePrice" yaml:"basePrice"`
	Discount    float64 `json:"discount" yaml:"discount"`
	MinimumTier Tier    `json:"minimumTier" yaml:"minimumTier"`
	Stock       int     `json:"stock" yaml:"stock"`
}

// User is the mutable per-user ledger entry. Balance may go negative.
type User struct {
	ID               string    `json:"id"`
	Balance          float64   `json:"balance"`
	Tier             Tier      `json:"tier"`
	PurchaseCount    int       `json:"purchaseCount"`
	TransactionLimit float64   `json:"transactionLimit"`
	LastActivity     time.Time `json:"lastActivity"`
}

// Session binds an opaque token to a user. Sessions never expire.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transaction is an immutable record of a committed purchase.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ProductID     int       `json:"productId"`
	Quantity      int       `json:"quantity"`
	ComputedPrice float64   `json:"computedPrice"`
	PaidPrice     float64   `json:"paidPrice"`
	ChargedPrice  float64   `json:"chargedPrice"`
	CouponCode    string    `json:"couponCode,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PurchaseRequest is the typed, boundary-validated purchase input.
// Quantity is deliberately signed; whether it must be positive is a policy decision.
type PurchaseRequest struct {
	ProductID  int
	Quantity   int
	CouponCode string
}

// Receipt is the success outcome of a purchase.
type Receipt struct {
	TransactionID string
	NewBalance    float64
	FinalPrice    float64
	PaidPrice     float64
	Charged       float64
	Flag          string
}

// Message renders the human readable confirmation line.
func (r *Receipt) Message() string {
	return "Transaction successful! ID: " + r.TransactionID
}
