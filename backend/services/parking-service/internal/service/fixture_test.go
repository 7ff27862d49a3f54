package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"easypark/backend/services/parking-service/internal/metrics"
	"easypark/backend/services/parking-service/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock      *fakeClock
	store      *memStore
	ledger     *memLedger
	metrics    *metrics.Metrics
	issuer     *TicketIssuer
	reconciler *SettlementReconciler
	cash       *CashCheckout
	reporter   *TicketReporter

	lot     models.Lot
	owner   models.Account
	keeper  models.Account
	patron  models.Account
	patron2 models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.Now)
	m := metrics.New(prometheus.NewRegistry())
	logger := zap.NewNop()

	f := &fixture{clock: clock, store: store, metrics: m}

	f.owner = models.Account{ID: uuid.New(), Name: "Owner", Role: models.RoleOwner}
	f.lot = models.Lot{
		ID:        uuid.New(),
		AreaName:  "Lot 1",
		Address:   "Jl. Parkir 1",
		CarRate:   decimal.NewFromInt(5000),
		MotorRate: decimal.NewFromInt(3000),
		OwnerID:   f.owner.ID,
	}
	lotID := f.lot.ID
	f.keeper = models.Account{ID: uuid.New(), Name: "Keeper", Role: models.RoleKeeper, LotID: &lotID}
	f.patron = models.Account{ID: uuid.New(), Name: "Patron", PhoneNumber: "+628111", Role: models.RolePatron}
	f.patron2 = models.Account{ID: uuid.New(), Name: "Patron Two", PhoneNumber: "+628222", Role: models.RolePatron}

	store.lots[f.lot.ID] = f.lot
	for _, acc := range []models.Account{f.owner, f.keeper, f.patron, f.patron2} {
		store.accounts[acc.ID] = acc
	}

	txs := memTransactions{store}
	accounts := memAccounts{store}
	lots := memLots{store}

	f.issuer = NewTicketIssuer(store, store, txs, accounts, lots, m, logger)
	f.issuer.now = clock.Now
	f.reconciler = NewSettlementReconciler(store, store, txs, nil, m, logger)
	f.reconciler.now = clock.Now
	f.cash = NewCashCheckout(store, store, txs, accounts, f.reconciler)
	f.cash.now = clock.Now
	f.reporter = NewTicketReporter(store, memReports{store}, store, txs, accounts, lots)
	f.reporter.now = clock.Now
	return f
}

// withLedger switches the reconciler to an in-memory delivery ledger.
func (f *fixture) withLedger() *memLedger {
	f.ledger = newMemLedger()
	f.reconciler.ledger = f.ledger
	return f.ledger
}

func (f *fixture) issueRequest(patron uuid.UUID, class models.VehicleClass, method models.PaymentMethod) IssueRequest {
	return IssueRequest{
		Patron:        PatronRef{ID: patron},
		KeeperID:      f.keeper.ID,
		LotID:         f.lot.ID,
		VehicleClass:  class,
		PaymentMethod: method,
	}
}

func strp(s string) *string { return &s }
