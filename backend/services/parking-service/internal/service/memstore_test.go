package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"easypark/backend/services/parking-service/internal/models"
	redisstore "easypark/backend/services/parking-service/internal/redis"
	"easypark/backend/services/parking-service/internal/repository"
)

type memTxKey struct{}

// memStore is an in-memory stand-in for every store interface. A transaction holds
// the store mutex for its whole duration and restores a copy of the data on error,
// which gives serializable semantics. The ticket->transaction reference is checked at
// commit, like the deferred foreign key in Postgres.
type memStore struct {
	mu       sync.Mutex
	tickets  map[uuid.UUID]models.Ticket
	order    map[uuid.UUID]int
	txs      map[string]models.Transaction
	accounts map[uuid.UUID]models.Account
	lots     map[uuid.UUID]models.Lot
	seq      int
	now      func() time.Time
	fail     map[string]error
	before   map[string]func()
	calls    map[string]int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		tickets:  map[uuid.UUID]models.Ticket{},
		order:    map[uuid.UUID]int{},
		txs:      map[string]models.Transaction{},
		accounts: map[uuid.UUID]models.Account{},
		lots:     map[uuid.UUID]models.Lot{},
		now:      now,
		fail:     map[string]error{},
		before:   map[string]func(){},
		calls:    map[string]int{},
	}
}

type memSnapshot struct {
	tickets map[uuid.UUID]models.Ticket
	order   map[uuid.UUID]int
	txs     map[string]models.Transaction
	seq     int
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		tickets: make(map[uuid.UUID]models.Ticket, len(m.tickets)),
		order:   make(map[uuid.UUID]int, len(m.order)),
		txs:     make(map[string]models.Transaction, len(m.txs)),
		seq:     m.seq,
	}
	for k, v := range m.tickets {
		s.tickets[k] = v
	}
	for k, v := range m.order {
		s.order[k] = v
	}
	for k, v := range m.txs {
		s.txs[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.tickets, m.order, m.txs, m.seq = s.tickets, s.order, s.txs, s.seq
}

// enter locks the store unless ctx already runs inside a transaction.
func (m *memStore) enter(ctx context.Context, op string) (func(), error) {
	release := func() {}
	if ctx.Value(memTxKey{}) == nil {
		m.mu.Lock()
		release = m.mu.Unlock
	}
	m.calls[op]++
	if hook, ok := m.before[op]; ok {
		hook()
	}
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	if err, ok := m.fail[op]; ok {
		release()
		return nil, err
	}
	return release, nil
}

// onCall runs hook when op is entered, before the context is checked.
func (m *memStore) onCall(op string, hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before[op] = hook
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *memStore) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(before)
		return err
	}
	// Commit fails once the caller gave up, like database/sql does.
	if err := ctx.Err(); err != nil {
		m.restore(before)
		return err
	}
	for _, t := range m.tickets {
		if _, ok := m.txs[t.TransactionID]; !ok {
			m.restore(before)
			return fmt.Errorf("memstore: ticket %s references missing transaction %s", t.ID, t.TransactionID)
		}
	}
	return nil
}

func (m *memStore) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshot()
	defer m.restore(before)
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

// TicketStore

func (m *memStore) LockPatron(ctx context.Context, patronID uuid.UUID) error {
	release, err := m.enter(ctx, "LockPatron")
	if err != nil {
		return err
	}
	defer release()
	return nil
}

func (m *memStore) FindOpenByPatron(ctx context.Context, patronID uuid.UUID) (*models.Ticket, error) {
	release, err := m.enter(ctx, "FindOpenByPatron")
	if err != nil {
		return nil, err
	}
	defer release()

	var found *models.Ticket
	for _, t := range m.tickets {
		if t.PatronID != patronID || !t.Status.Open() {
			continue
		}
		if found == nil || m.order[t.ID] < m.order[found.ID] {
			c := t
			found = &c
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (m *memStore) Create(ctx context.Context, ticket *models.Ticket) error {
	release, err := m.enter(ctx, "CreateTicket")
	if err != nil {
		return err
	}
	defer release()

	for _, t := range m.tickets {
		if t.PatronID == ticket.PatronID && t.Status.Open() && ticket.Status.Open() {
			return repository.ErrOpenTicketExists
		}
		if t.TransactionID == ticket.TransactionID {
			return repository.ErrDuplicateKey
		}
	}
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	ticket.CreatedAt, ticket.UpdatedAt = m.now(), m.now()
	m.seq++
	m.order[ticket.ID] = m.seq
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	release, err := m.enter(ctx, "GetTicket")
	if err != nil {
		return nil, err
	}
	defer release()

	t, ok := m.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetByTransaction(ctx context.Context, transactionID string) (*models.Ticket, error) {
	release, err := m.enter(ctx, "GetByTransaction")
	if err != nil {
		return nil, err
	}
	defer release()
	return m.ticketByTransaction(transactionID)
}

func (m *memStore) ticketByTransaction(transactionID string) (*models.Ticket, error) {
	for _, t := range m.tickets {
		if t.TransactionID == transactionID {
			c := t
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateOpen(ctx context.Context, id uuid.UUID, patch models.TicketPatch) (*models.Ticket, error) {
	release, err := m.enter(ctx, "UpdateOpen")
	if err != nil {
		return nil, err
	}
	defer release()

	t, ok := m.tickets[id]
	if !ok || !t.Status.Open() {
		return nil, repository.ErrNotFound
	}
	patch.Apply(&t)
	t.UpdatedAt = m.now()
	m.tickets[id] = t
	return &t, nil
}

func (m *memStore) CloseByTransaction(ctx context.Context, transactionID string, at time.Time) (*models.Ticket, bool, error) {
	release, err := m.enter(ctx, "CloseByTransaction")
	if err != nil {
		return nil, false, err
	}
	defer release()

	t, err := m.ticketByTransaction(transactionID)
	if err != nil {
		return nil, false, err
	}
	if !t.Status.Open() {
		return t, false, nil
	}
	t.Status = models.TicketStatusClosed
	t.CheckOutAt = &at
	t.UpdatedAt = m.now()
	m.tickets[t.ID] = *t
	return t, true, nil
}

// TransactionStore, reached through memTransactions because Create and GetByID
// collide with the ticket methods.
type memTransactions struct{ *memStore }

func (m memTransactions) Create(ctx context.Context, tx *models.Transaction) error {
	release, err := m.enter(ctx, "CreateTransaction")
	if err != nil {
		return err
	}
	defer release()

	if _, ok := m.txs[tx.ID]; ok {
		return repository.ErrDuplicateKey
	}
	tx.CreatedAt, tx.UpdatedAt = m.now(), m.now()
	m.txs[tx.ID] = *tx
	return nil
}

func (m memTransactions) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	release, err := m.enter(ctx, "GetTransaction")
	if err != nil {
		return nil, err
	}
	defer release()

	tx, ok := m.txs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tx, nil
}

func (m memTransactions) FindForCallback(ctx context.Context, orderID, gatewayID string) (*models.Transaction, error) {
	release, err := m.enter(ctx, "FindForCallback")
	if err != nil {
		return nil, err
	}
	defer release()

	if tx, ok := m.txs[orderID]; ok {
		return &tx, nil
	}
	if gatewayID != "" {
		if tx, ok := m.txs[gatewayID]; ok {
			return &tx, nil
		}
	}
	for _, tx := range m.txs {
		if tx.OrderID != nil && *tx.OrderID == orderID {
			c := tx
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memTransactions) Rename(ctx context.Context, oldID, newID string) error {
	release, err := m.enter(ctx, "Rename")
	if err != nil {
		return err
	}
	defer release()

	tx, ok := m.txs[oldID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, taken := m.txs[newID]; taken {
		return repository.ErrDuplicateKey
	}
	delete(m.txs, oldID)
	tx.ID = newID
	m.txs[newID] = tx
	for id, t := range m.tickets {
		if t.TransactionID == oldID {
			t.TransactionID = newID
			m.tickets[id] = t
		}
	}
	return nil
}

func (m memTransactions) Merge(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error) {
	release, err := m.enter(ctx, "Merge")
	if err != nil {
		return nil, err
	}
	defer release()

	tx, ok := m.txs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	patch.Apply(&tx)
	tx.UpdatedAt = m.now()
	m.txs[id] = tx
	return &tx, nil
}

// AccountDirectory and LotDirectory.
type memAccounts struct{ *memStore }

func (m memAccounts) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	release, err := m.enter(ctx, "FindAccount")
	if err != nil {
		return nil, err
	}
	defer release()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &acc, nil
}

func (m memAccounts) FindByPatronKey(ctx context.Context, key string) (*models.Account, error) {
	release, err := m.enter(ctx, "FindAccountByKey")
	if err != nil {
		return nil, err
	}
	defer release()

	for _, acc := range m.accounts {
		if acc.PhoneNumber == key {
			c := acc
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memLots struct{ *memStore }

func (m memLots) FindByID(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	release, err := m.enter(ctx, "FindLot")
	if err != nil {
		return nil, err
	}
	defer release()

	lot, ok := m.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lot, nil
}

// ReportStore.
type memReports struct{ *memStore }

func (m memReports) matching(f models.TicketFilter) []models.Ticket {
	var out []models.Ticket
	for _, t := range m.tickets {
		switch {
		case f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom),
			f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo),
			f.PatronID != nil && t.PatronID != *f.PatronID,
			f.KeeperID != nil && t.KeeperID != *f.KeeperID,
			f.OwnerID != nil && t.OwnerID != *f.OwnerID,
			f.Status != nil && t.Status != *f.Status,
			f.PaymentMethod != nil && t.PaymentMethod != *f.PaymentMethod:
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] > m.order[out[j].ID] })
	return out
}

func (m memReports) Count(ctx context.Context, f models.TicketFilter) (int64, error) {
	release, err := m.enter(ctx, "Count")
	if err != nil {
		return 0, err
	}
	defer release()
	return int64(len(m.matching(f))), nil
}

func (m memReports) Query(ctx context.Context, f models.TicketFilter, page models.Page) ([]models.TicketView, error) {
	release, err := m.enter(ctx, "Query")
	if err != nil {
		return nil, err
	}
	defer release()

	all := m.matching(f)
	views := []models.TicketView{}
	for i := page.Skip; i < len(all) && len(views) < page.Take; i++ {
		t := all[i]
		view := models.TicketView{Ticket: t}
		lot := m.lots[t.LotID]
		view.LotName, view.LotAddress, view.LotImageURL = lot.AreaName, lot.Address, lot.ImageURL
		view.PatronName = m.accounts[t.PatronID].Name
		if tx := m.txs[t.TransactionID]; tx.GrossAmount.Valid {
			view.TotalAmount = tx.GrossAmount.Decimal
		}
		views = append(views, view)
	}
	return views, nil
}

func (m memReports) Monthly(ctx context.Context, ownerID uuid.UUID, year int) ([]models.MonthlyCount, error) {
	release, err := m.enter(ctx, "Monthly")
	if err != nil {
		return nil, err
	}
	defer release()

	counts := map[time.Month]int64{}
	for _, t := range m.tickets {
		if t.OwnerID == ownerID && t.CreatedAt.Year() == year {
			counts[t.CreatedAt.Month()]++
		}
	}
	out := []models.MonthlyCount{}
	for month := time.January; month <= time.December; month++ {
		if n, ok := counts[month]; ok {
			out = append(out, models.MonthlyCount{Month: month.String(), Count: n})
		}
	}
	return out, nil
}

func (m memReports) Summary(ctx context.Context, rng models.TimeRange, ownerID, keeperID *uuid.UUID) (*models.SettlementSummary, error) {
	release, err := m.enter(ctx, "Summary")
	if err != nil {
		return nil, err
	}
	defer release()

	sum := &models.SettlementSummary{Sum: decimal.Zero}
	for _, t := range m.tickets {
		switch {
		case t.Status != models.TicketStatusClosed,
			t.CreatedAt.Before(rng.Start), t.CreatedAt.After(rng.End),
			ownerID != nil && t.OwnerID != *ownerID,
			keeperID != nil && (t.KeeperID != *keeperID || t.PaymentMethod != models.PaymentCash):
			continue
		}
		if tx := m.txs[t.TransactionID]; tx.GrossAmount.Valid {
			sum.Sum = sum.Sum.Add(tx.GrossAmount.Decimal)
		}
		sum.Count++
	}
	return sum, nil
}

// memLedger is an in-memory DeliveryLedger.
type memLedger struct {
	mu        sync.Mutex
	entries   map[string]redisstore.Delivery
	forgotten []string
	err       error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]redisstore.Delivery{}}
}

func (l *memLedger) Seen(_ context.Context, digest string) (*redisstore.Delivery, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	d, ok := l.entries[digest]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (l *memLedger) Remember(_ context.Context, digest string, d redisstore.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries[digest] = d
	return nil
}

func (l *memLedger) Forget(_ context.Context, digest string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	delete(l.entries, digest)
	l.forgotten = append(l.forgotten, digest)
	return nil
}

var errStoreDown = errors.Join(repository.ErrStoreUnavailable, errors.New("connection refused"))
