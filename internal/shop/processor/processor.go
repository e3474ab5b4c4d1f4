// Package processor runs the purchase state machine: authenticate, resolve,
// authorise, commit and evaluate the flag predicate.
package processor

import (
	"context"
	"errors"
	"fmt"

	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/metrics"
	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/policy"
	"github.com/logicshop-core/server/internal/shop/pricing"
	"github.com/logicshop-core/server/internal/shop/session"
	"github.com/logicshop-core/server/internal/shop/txlog"
	logx "github.com/logicshop-core/server/pkg/logger"
)

// Stage names a point in the purchase flow where a StageHook fires.
type Stage string

const (
	// StageAuthorized is reached after every check passed and before any mutation.
	StageAuthorized Stage = "authorized"
	// StageCommitted is reached after the transaction was logged.
	StageCommitted Stage = "committed"
)

// StageHook observes the purchase flow. It runs inside the critical section
// when the policy is atomic.
type StageHook func(ctx context.Context, stage Stage, req model.PurchaseRequest)

// Deps are the stores the processor reads and mutates.
type Deps struct {
	Sessions model.SessionStore
	Catalog  model.Catalog
	Ledger   model.Ledger
	Log      model.TransactionLog
}

type Option func(*Processor)

// WithClock sets the clock used for off-peak pricing and timestamps.
func WithClock(clock pricing.Clock) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Processor) {
		p.recorder = r
	}
}

func WithStageHook(hook StageHook) Option {
	return func(p *Processor) {
		p.hook = hook
	}
}

type Processor struct {
	deps     Deps
	policy   policy.Set
	pricing  *pricing.Engine
	clock    pricing.Clock
	flag     string
	locks    *keyedMutex
	recorder *metrics.Recorder
	hook     StageHook
}

// New builds a processor for the given policy set. flag is the secret
// returned when the flag predicate holds; it is never logged.
func New(deps Deps, set policy.Set, flag string, opts ...Option) (*Processor, error) {
	if deps.Sessions == nil || deps.Catalog == nil || deps.Ledger == nil || deps.Log == nil {
		return nil, errors.New("processor: sessions, catalog, ledger and log are required")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		deps:   deps,
		policy: set,
		clock:  pricing.SystemClock,
		flag:   flag,
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pricing = pricing.NewEngine(set.Pricing, p.clock)
	return p, nil
}

func (p *Processor) Policy() policy.Set {
	return p.policy
}

// ==== Session operations ====

// Login issues a fresh session for the default user.
func (p *Processor) Login(ctx context.Context) (model.Session, model.User, error) {
	user := p.deps.Ledger.Default()
	sess, err := p.deps.Sessions.Create(ctx, user.ID)
	if err != nil {
		return model.Session{}, model.User{}, errx.From(err)
	}
	p.recorder.SessionCreated()
	logx.Info().Str("userID", user.ID).Msg("session created")
	return sess, user, nil
}

// Authenticate resolves token to its user and refreshes the user's activity.
func (p *Processor) Authenticate(ctx context.Context, token string) (model.User, error) {
	userID, err := p.deps.Sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrMissingToken) || errors.Is(err, session.ErrInvalidToken) {
			return model.User{}, errx.Reject(errx.KindUnauthorized, err)
		}
		return model.User{}, errx.From(err)
	}
	if err := p.deps.Ledger.Touch(userID); err != nil {
		return model.User{}, errx.Reject(errx.KindUnauthorized, err)
	}
	user, err := p.deps.Ledger.Get(userID)
	if err != nil {
		return model.User{}, errx.Reject(errx.KindUnauthorized, err)
	}
	return user, nil
}

// Products lists the full catalog in definition order.
func (p *Processor) Products() []model.Product {
	return p.deps.Catalog.List()
}

// ==== Purchase ====

// Purchase runs the purchase flow for the session behind token. Check and
// commit are separate steps unless the policy is atomic.
func (p *Processor) Purchase(ctx context.Context, token string, req model.PurchaseRequest) (*model.Receipt, error) {
	receipt, err := p.purchase(ctx, token, req)
	if err != nil {
		kind := errx.KindOf(err)
		p.recorder.PurchaseRejected(string(kind))
		logx.Debug().
			Str("reason", string(kind)).
			Int("productID", req.ProductID).
			Int("quantity", req.Quantity).
			Msg("purchase rejected")
		return nil, err
	}
	return receipt, nil
}

func (p *Processor) purchase(ctx context.Context, token string, req model.PurchaseRequest) (*model.Receipt, error) {
	caller, err := p.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	if p.policy.Atomic {
		unlock := p.locks.Lock("user:"+caller.ID, fmt.Sprintf("product:%d", req.ProductID))
		defer unlock()
	}

	product, err := p.deps.Catalog.Find(req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, errx.Reject(errx.KindNotFound, err)
		}
		return nil, errx.From(err)
	}
	// Re-read under the lock so balance and counters are current.
	user, err := p.deps.Ledger.Get(caller.ID)
	if err != nil {
		return nil, errx.Reject(errx.KindUnauthorized, err)
	}

	if !p.policy.Tier.Allows(product, user) {
		return nil, errx.Rejectf(errx.KindTierMismatch, nil, "Product requires %s tier", product.MinimumTier)
	}
	if !p.policy.Quantity.Allows(req.Quantity) {
		return nil, errx.Rejectf(errx.KindInvalidAmount, nil, "Quantity must be positive")
	}
	if product.Stock < req.Quantity {
		return nil, errx.Reject(errx.KindInsufficientStock, nil)
	}

	quote := p.pricing.Quote(product, user, req.Quantity, req.CouponCode)
	if err := p.authorize(user, quote); err != nil {
		return nil, err
	}

	p.stage(ctx, StageAuthorized, req)

	charged := quote.Amount(p.policy.Authorization.Charge)
	user, err = p.deps.Ledger.Charge(user.ID, charged)
	if err != nil {
		return nil, errx.From(err)
	}
	product, err = p.deps.Catalog.DecrementStock(product.ID, req.Quantity)
	if err != nil {
		return nil, errx.From(err)
	}

	tx := model.Transaction{
		ID:            txlog.NewID(),
		UserID:        user.ID,
		ProductID:     product.ID,
		Quantity:      req.Quantity,
		ComputedPrice: quote.FinalPrice,
		PaidPrice:     quote.PaidPrice,
		ChargedPrice:  charged,
		CouponCode:    req.CouponCode,
		Timestamp:     p.clock.Now(),
	}
	if err := p.deps.Log.Append(ctx, tx); err != nil {
		logx.Error().Err(err).Str("transactionID", tx.ID).Msg("transaction committed but not logged")
		return nil, errx.From(err)
	}

	p.stage(ctx, StageCommitted, req)

	unlocked := p.policy.Flag.Unlocked(product, user, quote)
	p.recorder.PurchaseCommitted(charged, unlocked)

	event := logx.Info().
		Str("transactionID", tx.ID).
		Int("productID", product.ID).
		Int("quantity", req.Quantity).
		Float64("charged", charged).
		Float64("balance", user.Balance).
		Int("stock", product.Stock)
	if unlocked {
		event = event.Bool("flagUnlocked", true)
	}
	event.Msg("purchase committed")

	receipt := &model.Receipt{
		TransactionID: tx.ID,
		NewBalance:    user.Balance,
		FinalPrice:    quote.FinalPrice,
		PaidPrice:     quote.PaidPrice,
		Charged:       charged,
	}
	if unlocked {
		receipt.Flag = p.flag
	}
	return receipt, nil
}

// authorize validates the policy-selected price against the user's limits.
func (p *Processor) authorize(user model.User, quote pricing.Quote) error {
	auth := p.policy.Authorization
	amount := quote.Amount(auth.Validate)

	if auth.RequireNonNegative && amount < 0 {
		return errx.Reject(errx.KindInvalidAmount, nil)
	}
	if amount > user.TransactionLimit {
		return errx.Reject(errx.KindLimitExceeded, nil)
	}
	if auth.CheckBalance && amount > user.Balance {
		return errx.Reject(errx.KindInsufficientFunds, nil)
	}
	return nil
}

func (p *Processor) stage(ctx context.Context, stage Stage, req model.PurchaseRequest) {
	if p.hook != nil {
		p.hook(ctx, stage, req)
	}
}
