package engine

import (
	"sync"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/exchange/types"
	"github.com/openalpha/spot-exchange/metrics"
)

// tickerBook pairs a book with the lock that serializes every order
// submission and cancellation for that ticker. Cross-ticker operations
// run in parallel.
type tickerBook struct {
	mu   sync.Mutex
	book *orderBook
}

// Engine owns all exchange state: users, instruments, balances, orders,
// per-ticker books and the append-only trade log. All transitions on
// orders and balances go through it.
type Engine struct {
	logger   log.Logger
	balances *balanceStore

	mu           sync.RWMutex
	users        map[uuid.UUID]*types.User
	usersByKey   map[uuid.UUID]*types.User
	instruments  map[string]types.Instrument
	orders       map[uuid.UUID]*types.Order
	ordersByUser map[uuid.UUID][]uuid.UUID
	trades       map[string][]*types.Trade
	books        map[string]*tickerBook
}

// New creates an empty engine
func New(logger log.Logger) *Engine {
	return &Engine{
		logger:       logger.With("module", "engine"),
		balances:     newBalanceStore(),
		users:        make(map[uuid.UUID]*types.User),
		usersByKey:   make(map[uuid.UUID]*types.User),
		instruments:  make(map[string]types.Instrument),
		orders:       make(map[uuid.UUID]*types.Order),
		ordersByUser: make(map[uuid.UUID][]uuid.UUID),
		trades:       make(map[string][]*types.Trade),
		books:        make(map[string]*tickerBook),
	}
}

// ---------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------

// RegisterUser creates a USER-role user with a fresh API key
func (e *Engine) RegisterUser(name string) *types.User {
	return e.addUser(name, types.RoleUser)
}

// BootstrapAdmin creates an ADMIN-role user. Used once at startup so the
// admin endpoints are reachable.
func (e *Engine) BootstrapAdmin(name string, apiKey uuid.UUID) *types.User {
	user := types.NewUser(name, types.RoleAdmin)
	user.APIKey = apiKey

	e.mu.Lock()
	e.users[user.ID] = user
	e.usersByKey[user.APIKey] = user
	e.mu.Unlock()

	metrics.GetCollector().ActiveUsers.Inc()
	e.logger.Info("bootstrapped admin user", "user_id", user.ID)
	return user
}

func (e *Engine) addUser(name string, role types.Role) *types.User {
	user := types.NewUser(name, role)

	e.mu.Lock()
	e.users[user.ID] = user
	e.usersByKey[user.APIKey] = user
	e.mu.Unlock()

	metrics.GetCollector().ActiveUsers.Inc()
	e.logger.Info("registered user", "user_id", user.ID, "role", role)
	return user
}

// UserByAPIKey resolves an API key to its user
func (e *Engine) UserByAPIKey(key uuid.UUID) (*types.User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	user, ok := e.usersByKey[key]
	return user, ok
}

// User returns a user by ID
func (e *Engine) User(id uuid.UUID) (*types.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	user, ok := e.users[id]
	if !ok {
		return nil, types.ErrNotFound.Wrapf("user %s", id)
	}
	return user, nil
}

// DeleteUser cancels the user's live limit orders (refunding their
// reservations), drops the user's balances and order history, and
// removes the user. Returns the deleted snapshot.
func (e *Engine) DeleteUser(id uuid.UUID) (*types.User, error) {
	e.mu.RLock()
	user, ok := e.users[id]
	orderIDs := append([]uuid.UUID(nil), e.ordersByUser[id]...)
	e.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound.Wrapf("user %s", id)
	}

	for _, orderID := range orderIDs {
		// Only live limit orders need unwinding; terminal ones error out.
		_ = e.CancelOrder(id, orderID)
	}
	e.balances.DeleteUser(id)

	e.mu.Lock()
	for _, orderID := range e.ordersByUser[id] {
		delete(e.orders, orderID)
	}
	delete(e.ordersByUser, id)
	delete(e.usersByKey, user.APIKey)
	delete(e.users, id)
	e.mu.Unlock()

	metrics.GetCollector().ActiveUsers.Dec()
	e.logger.Info("deleted user", "user_id", id)
	return user, nil
}

// ---------------------------------------------------------------------
// Instruments
// ---------------------------------------------------------------------

// CreateInstrument registers a new tradable asset
func (e *Engine) CreateInstrument(ticker, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ticker == types.QuoteTicker {
		return types.ErrConflict.Wrapf("%s is the quote currency", ticker)
	}
	if _, ok := e.instruments[ticker]; ok {
		return types.ErrConflict.Wrapf("instrument %s", ticker)
	}
	e.instruments[ticker] = types.Instrument{Ticker: ticker, Name: name}
	return nil
}

// DeleteInstrument delists the ticker, cancels all its live limit
// orders, then drops the book and trade history. The instrument is
// removed first and the sweep runs under the ticker lock, so an order
// submission racing the delisting either completes before the sweep
// (and is swept) or fails its tradable re-check; nothing can rest on a
// delisted book.
func (e *Engine) DeleteInstrument(ticker string) error {
	e.mu.Lock()
	if _, ok := e.instruments[ticker]; !ok {
		e.mu.Unlock()
		return types.ErrNotFound.Wrapf("instrument %s", ticker)
	}
	delete(e.instruments, ticker)
	tb := e.books[ticker]
	e.mu.Unlock()

	if tb != nil {
		tb.mu.Lock()
		e.mu.RLock()
		var live []*types.Order
		for _, o := range e.orders {
			if o.Ticker == ticker && o.IsLive() {
				live = append(live, o)
			}
		}
		e.mu.RUnlock()
		for _, o := range live {
			if err := e.cancelLocked(tb, o); err != nil {
				e.logger.Error("failed to unwind order on instrument delete", "order_id", o.ID, "err", err)
			}
		}
		tb.mu.Unlock()
	}

	e.mu.Lock()
	delete(e.books, ticker)
	delete(e.trades, ticker)
	e.mu.Unlock()

	e.logger.Info("deleted instrument", "ticker", ticker)
	return nil
}

// Instruments lists all tradable assets
func (e *Engine) Instruments() []types.Instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.Instrument, 0, len(e.instruments))
	for _, ins := range e.instruments {
		out = append(out, ins)
	}
	return out
}

// hasInstrument reports whether ticker is tradable or the quote currency
func (e *Engine) hasInstrument(ticker string) bool {
	if ticker == types.QuoteTicker {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.instruments[ticker]
	return ok
}

// ---------------------------------------------------------------------
// Balances
// ---------------------------------------------------------------------

// Deposit credits a user's spendable balance
func (e *Engine) Deposit(userID uuid.UUID, ticker string, amount uint64) error {
	if _, err := e.User(userID); err != nil {
		return err
	}
	if !e.hasInstrument(ticker) {
		return types.ErrNotFound.Wrapf("instrument %s", ticker)
	}
	return e.balances.Deposit(userID, ticker, amount)
}

// Withdraw debits a user's spendable balance; blocked funds stay
func (e *Engine) Withdraw(userID uuid.UUID, ticker string, amount uint64) error {
	if _, err := e.User(userID); err != nil {
		return err
	}
	return e.balances.Withdraw(userID, ticker, amount)
}

// Balances returns the user's spendable amounts by ticker
func (e *Engine) Balances(userID uuid.UUID) (map[string]uint64, error) {
	if _, err := e.User(userID); err != nil {
		return nil, err
	}
	return e.balances.Snapshot(userID), nil
}

// ---------------------------------------------------------------------
// Orders and projections
// ---------------------------------------------------------------------

// getBook returns the ticker's book, creating it lazily
func (e *Engine) getBook(ticker string) *tickerBook {
	e.mu.Lock()
	defer e.mu.Unlock()

	tb, ok := e.books[ticker]
	if !ok {
		tb = &tickerBook{book: newOrderBook(ticker)}
		e.books[ticker] = tb
	}
	return tb
}

// Order returns a point-in-time copy of one of the caller's orders. The
// copy is taken under the ticker lock so it never observes a half-applied
// match.
func (e *Engine) Order(userID, orderID uuid.UUID) (*types.Order, error) {
	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()

	if !ok || order.UserID != userID {
		return nil, types.ErrNotFound.Wrapf("order %s", orderID)
	}
	return e.snapshotOrder(order), nil
}

// Orders lists copies of the caller's orders in submission order
func (e *Engine) Orders(userID uuid.UUID) []*types.Order {
	e.mu.RLock()
	ids := e.ordersByUser[userID]
	orders := make([]*types.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := e.orders[id]; ok {
			orders = append(orders, order)
		}
	}
	e.mu.RUnlock()

	out := make([]*types.Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, e.snapshotOrder(order))
	}
	return out
}

// snapshotOrder clones an order under its ticker lock. Resting orders
// are filled under that lock, so the clone is a committed snapshot.
func (e *Engine) snapshotOrder(order *types.Order) *types.Order {
	tb := e.getBook(order.Ticker)
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return order.Clone()
}

// Depth returns up to limit aggregated levels per side. The snapshot is
// taken under the ticker lock, so it never observes a half-applied match.
func (e *Engine) Depth(ticker string, limit int) (bids, asks []types.BookLevel, err error) {
	if !e.hasInstrument(ticker) || ticker == types.QuoteTicker {
		return nil, nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}
	tb := e.getBook(ticker)
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.book.levels(types.DirectionBuy, limit), tb.book.levels(types.DirectionSell, limit), nil
}

// Trades returns the most recent limit trades for a ticker, newest first
func (e *Engine) Trades(ticker string, limit int) ([]*types.Trade, error) {
	if !e.hasInstrument(ticker) || ticker == types.QuoteTicker {
		return nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	history := e.trades[ticker]
	n := len(history)
	if limit > n {
		limit = n
	}
	out := make([]*types.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// recordOrder stores a finished or resting order
func (e *Engine) recordOrder(order *types.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.orders[order.ID] = order
	e.ordersByUser[order.UserID] = append(e.ordersByUser[order.UserID], order.ID)
}

// recordTrades appends to the ticker's trade log in matching order
func (e *Engine) recordTrades(ticker string, trades []*types.Trade) {
	if len(trades) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades[ticker] = append(e.trades[ticker], trades...)
}
