package processor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/logicshop-core/server/internal/core"
	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/metrics"
	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/ledger"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/policy"
	"github.com/logicshop-core/server/internal/shop/pricing"
	"github.com/logicshop-core/server/internal/shop/session"
	"github.com/logicshop-core/server/internal/shop/txlog"
	logx "github.com/logicshop-core/server/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFlag = "flag{test}"

var defaultUser = model.UserConfig{Balance: 1000, Tier: "standard", TransactionLimit: 500}

type fixture struct {
	proc    *Processor
	catalog *catalog.Store
	ledger  *ledger.Ledger
	log     *txlog.MemoryLog
	token   string
	userID  string
}

type fixtureOpts struct {
	user     model.UserConfig
	products []model.Product
	log      model.TransactionLog
	opts     []Option
}

func newFixture(t *testing.T, set policy.Set, fo fixtureOpts) *fixture {
	t.Helper()
	if fo.user == (model.UserConfig{}) {
		fo.user = defaultUser
	}
	if fo.products == nil {
		fo.products = catalog.DefaultProducts()
	}

	cat, err := catalog.New(fo.products)
	require.NoError(t, err)
	led, err := ledger.New(fo.user)
	require.NoError(t, err)
	mem := txlog.NewMemoryLog()
	var log model.TransactionLog = mem
	if fo.log != nil {
		log = fo.log
	}

	proc, err := New(Deps{
		Sessions: session.NewMemoryStore(),
		Catalog:  cat,
		Ledger:   led,
		Log:      log,
	}, set, testFlag, fo.opts...)
	require.NoError(t, err)

	sess, user, err := proc.Login(context.Background())
	require.NoError(t, err)

	return &fixture{proc: proc, catalog: cat, ledger: led, log: mem, token: sess.Token, userID: user.ID}
}

func preset(t *testing.T, name string) policy.Set {
	t.Helper()
	s, err := policy.Preset(name)
	require.NoError(t, err)
	return s
}

func (f *fixture) stock(t *testing.T, id int) int {
	t.Helper()
	p, err := f.catalog.Find(id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) user(t *testing.T) model.User {
	t.Helper()
	u, err := f.ledger.Get(f.userID)
	require.NoError(t, err)
	return u
}

func (f *fixture) buy(productID, quantity int, coupon string) (*model.Receipt, error) {
	return f.proc.Purchase(context.Background(), f.token, model.PurchaseRequest{
		ProductID:  productID,
		Quantity:   quantity,
		CouponCode: coupon,
	})
}

func (f *fixture) assertUnchanged(t *testing.T) {
	t.Helper()
	u := f.user(t)
	assert.Equal(t, 1000.0, u.Balance)
	assert.Equal(t, 0, u.PurchaseCount)
	assert.Equal(t, 100, f.stock(t, 1))
	assert.Equal(t, 30, f.stock(t, 2))
	assert.Equal(t, 50, f.stock(t, 3))
	n, err := f.log.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New(Deps{}, preset(t, policy.PresetHardened), testFlag)
	assert.Error(t, err)

	bad := preset(t, policy.PresetHardened)
	bad.Quantity = "sometimes"
	cat, _ := catalog.New(catalog.DefaultProducts())
	led, _ := ledger.New(defaultUser)
	_, err = New(Deps{Sessions: session.NewMemoryStore(), Catalog: cat, Ledger: led, Log: txlog.NewMemoryLog()}, bad, testFlag)
	assert.Error(t, err)
}

func TestPurchaseCommitsStockBalanceAndLog(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{})

	receipt, err := f.buy(1, 2, "")
	require.NoError(t, err)

	assert.Equal(t, 900.0, receipt.NewBalance)
	assert.Equal(t, 100.0, receipt.FinalPrice)
	assert.Equal(t, 100.0, receipt.Charged)
	assert.Empty(t, receipt.Flag)
	assert.Equal(t, "Transaction successful! ID: "+receipt.TransactionID, receipt.Message())

	u := f.user(t)
	assert.Equal(t, 900.0, u.Balance)
	assert.Equal(t, 1, u.PurchaseCount)
	assert.Equal(t, 98, f.stock(t, 1))

	tx, err := f.log.Get(context.Background(), receipt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, f.userID, tx.UserID)
	assert.Equal(t, 1, tx.ProductID)
	assert.Equal(t, 2, tx.Quantity)
	assert.Equal(t, 100.0, tx.ComputedPrice)
	assert.Equal(t, 100.0, tx.ChargedPrice)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{})

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		receipt, err := f.buy(1, 1, "")
		require.NoError(t, err)
		assert.False(t, seen[receipt.TransactionID], "duplicate id %s", receipt.TransactionID)
		seen[receipt.TransactionID] = true

		n, err := f.log.Len(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}
}

func TestUnauthenticatedPurchaseMutatesNothing(t *testing.T) {
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{})

	for _, token := range []string{"", "sess_unknown"} {
		_, err := f.proc.Purchase(context.Background(), token, model.PurchaseRequest{ProductID: 1, Quantity: 1})
		require.Error(t, err)
		assert.Equal(t, errx.KindUnauthorized, errx.KindOf(err))
		assert.Equal(t, 401, errx.From(err).Status)
	}
	f.assertUnchanged(t)
}

func TestRejectionsMutateNothing(t *testing.T) {
	tests := []struct {
		name      string
		preset    string
		productID int
		quantity  int
		kind      errx.Kind
	}{
		{"unknown product", policy.PresetHardened, 99, 1, errx.KindNotFound},
		{"loose no product", policy.DefaultPreset, catalog.NoProduct, 1, errx.KindNotFound},
		{"tier mismatch", policy.PresetHardened, 2, 1, errx.KindTierMismatch},
		{"zero quantity checked", policy.PresetHardened, 1, 0, errx.KindInvalidAmount},
		{"negative quantity checked", policy.PresetHardened, 1, -10, errx.KindInvalidAmount},
		{"insufficient stock", policy.PresetHardened, 1, 101, errx.KindInsufficientStock},
		{"limit exceeded", policy.PresetHardened, 1, 11, errx.KindLimitExceeded},
		{"limit exceeded unchecked", policy.DefaultPreset, 3, 4, errx.KindLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, preset(t, tt.preset), fixtureOpts{})
			_, err := f.buy(tt.productID, tt.quantity, "")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errx.KindOf(err))
			f.assertUnchanged(t)
		})
	}
}

func TestTierMismatchIsForbidden(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{})
	_, err := f.buy(2, 1, "")
	require.Error(t, err)
	assert.Equal(t, 403, errx.From(err).Status)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{
		user: model.UserConfig{Balance: 100, Tier: "standard", TransactionLimit: 500},
	})
	_, err := f.buy(1, 3, "")
	require.Error(t, err)
	assert.Equal(t, errx.KindInsufficientFunds, errx.KindOf(err))
	assert.Equal(t, 100.0, f.user(t).Balance)
}

func TestBalanceMayGoNegativeWithoutBalanceCheck(t *testing.T) {
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{
		user: model.UserConfig{Balance: 100, Tier: "standard", TransactionLimit: 500},
	})
	receipt, err := f.buy(1, 3, "")
	require.NoError(t, err)
	assert.Equal(t, -50.0, receipt.NewBalance)
}

func TestNegativeQuantityCreditsUserWhenUnchecked(t *testing.T) {
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{})

	receipt, err := f.buy(1, -10, "")
	require.NoError(t, err)
	assert.Equal(t, -500.0, receipt.Charged)
	assert.Equal(t, 1500.0, receipt.NewBalance)
	assert.Equal(t, 110, f.stock(t, 1))
	assert.Equal(t, 1, f.user(t).PurchaseCount)
}

func TestNonNegativeGuardBlocksNegativeQuantity(t *testing.T) {
	set := preset(t, policy.DefaultPreset)
	set.Authorization.RequireNonNegative = true
	f := newFixture(t, set, fixtureOpts{})

	_, err := f.buy(1, -10, "")
	require.Error(t, err)
	assert.Equal(t, errx.KindInvalidAmount, errx.KindOf(err))
	f.assertUnchanged(t)
}

func TestTierSkipAndBypass(t *testing.T) {
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{})
	receipt, err := f.buy(2, 1, "")
	require.NoError(t, err)
	assert.InDelta(t, 190.0, receipt.Charged, 1e-9)

	f = newFixture(t, preset(t, policy.PresetTierBypass), fixtureOpts{})
	_, err = f.buy(2, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 29, f.stock(t, 2))
}

func TestHiddenBalanceFlag(t *testing.T) {
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{})

	receipt, err := f.buy(1, 1, "")
	require.NoError(t, err)
	assert.Empty(t, receipt.Flag)

	receipt, err = f.buy(3, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 800.0, receipt.NewBalance)
	assert.Equal(t, testFlag, receipt.Flag)

	receipt, err = f.buy(3, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 650.0, receipt.NewBalance)
	assert.Empty(t, receipt.Flag)
}

func TestCouponDivergence(t *testing.T) {
	t.Run("limit between paid and final unlocks", func(t *testing.T) {
		f := newFixture(t, preset(t, policy.PresetCouponDivergence), fixtureOpts{
			user: model.UserConfig{Balance: 1000, Tier: "standard", TransactionLimit: 140},
		})
		receipt, err := f.buy(3, 1, pricing.DefaultCouponCode)
		require.NoError(t, err)
		assert.Equal(t, 150.0, receipt.FinalPrice)
		assert.Equal(t, 135.0, receipt.PaidPrice)
		assert.Equal(t, 150.0, receipt.Charged)
		assert.Equal(t, 850.0, receipt.NewBalance)
		assert.Equal(t, testFlag, receipt.Flag)
	})

	t.Run("limit above final does not unlock", func(t *testing.T) {
		f := newFixture(t, preset(t, policy.PresetCouponDivergence), fixtureOpts{
			user: model.UserConfig{Balance: 1000, Tier: "standard", TransactionLimit: 160},
		})
		receipt, err := f.buy(3, 1, pricing.DefaultCouponCode)
		require.NoError(t, err)
		assert.Empty(t, receipt.Flag)
	})

	t.Run("without coupon the limit holds", func(t *testing.T) {
		f := newFixture(t, preset(t, policy.PresetCouponDivergence), fixtureOpts{
			user: model.UserConfig{Balance: 1000, Tier: "standard", TransactionLimit: 140},
		})
		_, err := f.buy(3, 1, "")
		require.Error(t, err)
		assert.Equal(t, errx.KindLimitExceeded, errx.KindOf(err))
	})

	t.Run("hardened charges what it validates", func(t *testing.T) {
		f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{
			user: model.UserConfig{Balance: 1000, Tier: "standard", TransactionLimit: 140},
		})
		receipt, err := f.buy(3, 1, pricing.DefaultCouponCode)
		require.NoError(t, err)
		assert.Equal(t, 135.0, receipt.Charged)
		assert.Equal(t, 865.0, receipt.NewBalance)
	})
}

func TestOffPeakUsesInjectedClock(t *testing.T) {
	night := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	noon := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f := newFixture(t, preset(t, policy.PresetOffPeak), fixtureOpts{
		opts: []Option{WithClock(pricing.FixedClock(night))},
	})
	receipt, err := f.buy(1, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 45.0, receipt.Charged)
	tx, err := f.log.Get(context.Background(), receipt.TransactionID)
	require.NoError(t, err)
	assert.True(t, tx.Timestamp.Equal(night))

	f = newFixture(t, preset(t, policy.PresetOffPeak), fixtureOpts{
		opts: []Option{WithClock(pricing.FixedClock(noon))},
	})
	receipt, err = f.buy(1, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 50.0, receipt.Charged)
}

func TestHistoryDiscountAfterThreshold(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHistoryDiscount), fixtureOpts{
		user: model.UserConfig{Balance: 1000, Tier: "premium", TransactionLimit: 500},
	})

	for i := 0; i < 3; i++ {
		receipt, err := f.buy(2, 1, "")
		require.NoError(t, err)
		assert.Equal(t, 200.0, receipt.Charged)
	}
	receipt, err := f.buy(2, 1, "")
	require.NoError(t, err)
	assert.InDelta(t, 190.0, receipt.Charged, 1e-9)
	assert.InDelta(t, 210.0, receipt.NewBalance, 1e-9)
}

func TestAtomicPolicyNeverOversells(t *testing.T) {
	const buyers = 20
	products := []model.Product{{ID: 1, Name: "Basic Item", BasePrice: 50, Stock: 5}}
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{products: products})

	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.buy(1, 1, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, f.stock(t, 1))
	assert.Equal(t, 750.0, f.user(t).Balance)
}

func TestNonAtomicPolicyOversellsUnderInterleaving(t *testing.T) {
	products := []model.Product{{ID: 1, Name: "Basic Item", BasePrice: 50, Stock: 1}}

	// Both purchases pass their checks before either commits.
	var arrived sync.WaitGroup
	arrived.Add(2)
	hook := func(_ context.Context, stage Stage, _ model.PurchaseRequest) {
		if stage == StageAuthorized {
			arrived.Done()
			arrived.Wait()
		}
	}
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{
		products: products,
		opts:     []Option{WithStageHook(hook)},
	})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.buy(1, 1, "")
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("purchases did not finish")
		}
	}

	assert.Equal(t, -1, f.stock(t, 1))
	assert.Equal(t, 900.0, f.user(t).Balance)
	assert.Equal(t, 2, f.user(t).PurchaseCount)
}

func TestAtomicPolicyRejectsSecondBuyerOfLastUnit(t *testing.T) {
	products := []model.Product{{ID: 1, Name: "Basic Item", BasePrice: 50, Stock: 1}}
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{products: products})

	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := f.buy(1, 1, "")
			errs <- err
		}()
	}
	close(start)

	var kinds []errx.Kind
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			kinds = append(kinds, errx.KindOf(err))
		}
	}
	assert.Equal(t, []errx.Kind{errx.KindInsufficientStock}, kinds)
	assert.Equal(t, 0, f.stock(t, 1))
}

type failingLog struct {
	txlog.MemoryLog
}

func (*failingLog) Append(context.Context, model.Transaction) error {
	return errors.New("log unavailable")
}

func TestLogFailureKeepsMutation(t *testing.T) {
	f := newFixture(t, preset(t, policy.PresetHardened), fixtureOpts{log: &failingLog{}})

	_, err := f.buy(1, 1, "")
	require.Error(t, err)
	assert.Equal(t, errx.KindInternal, errx.KindOf(err))
	assert.Equal(t, 99, f.stock(t, 1))
	assert.Equal(t, 950.0, f.user(t).Balance)
}

func TestRecorderSeesOutcomes(t *testing.T) {
	rec := metrics.NewRecorder(policy.DefaultPreset)
	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{
		opts: []Option{WithRecorder(rec)},
	})

	_, err := f.buy(3, 1, "")
	require.NoError(t, err)
	_, err = f.buy(99, 1, "")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(rec.Registry(), "logicshop_purchases_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(rec.Registry(), "logicshop_sessions_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFlagNeverLogged(t *testing.T) {
	var buf bytes.Buffer
	logx.Init(logx.LoggerOpts{Environment: core.Production, Level: "debug", Output: &buf})
	t.Cleanup(func() { logx.Init() })

	f := newFixture(t, preset(t, policy.DefaultPreset), fixtureOpts{})
	receipt, err := f.buy(3, 1, "")
	require.NoError(t, err)
	require.Equal(t, testFlag, receipt.Flag)

	assert.Contains(t, buf.String(), "purchase committed")
	assert.Contains(t, buf.String(), `"flagUnlocked":true`)
	assert.NotContains(t, buf.String(), testFlag)
}
