package model

import "context"

// SessionStore maps opaque tokens to user identities.
type SessionStore interface {
	// Create issues a fresh token for userID.
	Create(ctx context.Context, userID string) (Session, error)

	// Resolve returns the user bound to token.
	Resolve(ctx context.Context, token string) (string, error)
}

// Catalog is the product registry consulted by the purchase flow.
type Catalog interface {
	Find(id int) (Product, error)
	List() []Product

	// DecrementStock subtracts quantity without re-validating availability.
	DecrementStock(id int, quantity int) (Product, error)
}

// Ledger holds per-user balances and counters.
type Ledger interface {
	Get(userID string) (User, error)
	Default() User

	// Touch refreshes the user's last activity timestamp.
	Touch(userID string) error

	// Charge deducts amount, bumps the purchase counter and returns the updated user.
	Charge(userID string, amount float64) (User, error)
}

// TransactionLog is an append-only record of committed purchases.
type TransactionLog interface {
	Append(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	List(ctx context.Context) ([]Transaction, error)
	Len(ctx context.Context) (int, error)
}
