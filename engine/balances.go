package engine

import (
	"fmt"
	"math"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/exchange/types"
)

type balanceKey struct {
	user   uuid.UUID
	ticker string
}

// balanceStore holds all balance rows. Every mutating method verifies
// preconditions and applies all of its legs under one critical section,
// so a committed step never leaves partial state and amounts never go
// negative.
type balanceStore struct {
	mu   sync.Mutex
	rows map[balanceKey]*types.Balance
}

func newBalanceStore() *balanceStore {
	return &balanceStore{rows: make(map[balanceKey]*types.Balance)}
}

// row returns the balance row, creating it lazily. Caller holds bs.mu.
func (bs *balanceStore) row(user uuid.UUID, ticker string) *types.Balance {
	key := balanceKey{user: user, ticker: ticker}
	b, ok := bs.rows[key]
	if !ok {
		b = &types.Balance{UserID: user, Ticker: ticker}
		bs.rows[key] = b
	}
	return b
}

// Deposit credits spendable balance, creating the row if needed. A
// deposit that would push amount+blocked past the uint64 range is
// rejected so the row can never wrap.
func (bs *balanceStore) Deposit(user uuid.UUID, ticker string, amount uint64) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.row(user, ticker)
	if amount > math.MaxUint64-b.Amount-b.Blocked {
		return types.ErrValidation.Wrapf("deposit of %d %s overflows balance", amount, ticker)
	}
	b.Amount += amount
	return nil
}

// Withdraw debits spendable balance. Blocked funds stay untouched.
func (bs *balanceStore) Withdraw(user uuid.UUID, ticker string, amount uint64) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, ok := bs.rows[balanceKey{user: user, ticker: ticker}]
	if !ok {
		return types.ErrNotFound.Wrapf("balance %s for user %s", ticker, user)
	}
	if b.Amount < amount {
		return insufficientErr(ticker).Wrapf("have %d, want %d %s", b.Amount, amount, ticker)
	}
	b.Amount -= amount
	return nil
}

// Reserve moves amount from spendable to blocked to back a limit order
func (bs *balanceStore) Reserve(user uuid.UUID, ticker string, amount uint64) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := bs.row(user, ticker)
	if b.Amount < amount {
		return insufficientErr(ticker).Wrapf("have %d, want %d %s", b.Amount, amount, ticker)
	}
	b.Amount -= amount
	b.Blocked += amount
	return nil
}

// Release moves amount from blocked back to spendable (cancel refund).
// A shortfall here means the reservation invariant was broken upstream.
func (bs *balanceStore) Release(user uuid.UUID, ticker string, amount uint64) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, ok := bs.rows[balanceKey{user: user, ticker: ticker}]
	if !ok || b.Blocked < amount {
		return types.ErrInternal.Wrapf("release %d %s for user %s exceeds reservation", amount, ticker, user)
	}
	b.Blocked -= amount
	b.Amount += amount
	return nil
}

// settlement describes the balance legs of one trade. The buyer pays
// qty*price to the seller and receives qty of ticker. A limit buyer pays
// out of blocked funds reserved at its own limit price; the difference
// between that price and the trade price is refunded to spendable RUB.
type settlement struct {
	buyer  uuid.UUID
	seller uuid.UUID
	ticker string
	qty    uint64
	price  uint64

	buyerLimitPrice  uint64 // reservation price, 0 for market buyers
	buyerFromBlocked bool
	sellerFromBlocked bool
}

// errSettlementShort reports a spendable-balance shortfall on a market
// order leg; matching stops gracefully.
var errSettlementShort = fmt.Errorf("spendable balance cannot cover trade")

// Settle verifies and applies all four balance legs of one trade
// atomically. A blocked-funds shortfall is an invariant break and comes
// back as ErrInternal; a spendable shortfall on a market leg comes back
// as errSettlementShort.
func (bs *balanceStore) Settle(s settlement) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cost := s.qty * s.price
	buyerQuote := bs.row(s.buyer, types.QuoteTicker)
	sellerQuote := bs.row(s.seller, types.QuoteTicker)
	buyerAsset := bs.row(s.buyer, s.ticker)
	sellerAsset := bs.row(s.seller, s.ticker)

	// Verify every leg before touching anything.
	if s.buyerFromBlocked {
		reserved := s.qty * s.buyerLimitPrice
		if buyerQuote.Blocked < reserved {
			return types.ErrInternal.Wrapf("buyer %s blocked %d below reservation %d", s.buyer, buyerQuote.Blocked, reserved)
		}
	} else if buyerQuote.Amount < cost {
		return fmt.Errorf("%w: buyer has %d, trade costs %d", errSettlementShort, buyerQuote.Amount, cost)
	}
	if s.sellerFromBlocked {
		if sellerAsset.Blocked < s.qty {
			return types.ErrInternal.Wrapf("seller %s blocked %d %s below %d", s.seller, sellerAsset.Blocked, s.ticker, s.qty)
		}
	} else if sellerAsset.Amount < s.qty {
		return fmt.Errorf("%w: seller has %d %s, trade needs %d", errSettlementShort, sellerAsset.Amount, s.ticker, s.qty)
	}

	// Buyer pays. Price improvement over the buyer's own limit price is
	// refunded to spendable so blocked keeps tracking live reservations.
	if s.buyerFromBlocked {
		reserved := s.qty * s.buyerLimitPrice
		buyerQuote.Blocked -= reserved
		buyerQuote.Amount += reserved - cost
	} else {
		buyerQuote.Amount -= cost
	}
	sellerQuote.Amount += cost

	// Seller delivers.
	if s.sellerFromBlocked {
		sellerAsset.Blocked -= s.qty
	} else {
		sellerAsset.Amount -= s.qty
	}
	buyerAsset.Amount += s.qty

	return nil
}

// Snapshot returns the user's spendable amounts by ticker
func (bs *balanceStore) Snapshot(user uuid.UUID) map[string]uint64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	out := make(map[string]uint64)
	for key, b := range bs.rows {
		if key.user == user {
			out[key.ticker] = b.Amount
		}
	}
	return out
}

// DeleteUser drops all balance rows of a user
func (bs *balanceStore) DeleteUser(user uuid.UUID) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	for key := range bs.rows {
		if key.user == user {
			delete(bs.rows, key)
		}
	}
}

// totals sums amount+blocked per user for one ticker; used to check
// conservation in tests.
func (bs *balanceStore) totals(ticker string) uint64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	total := uint64(0)
	for key, b := range bs.rows {
		if key.ticker == ticker {
			total += b.Amount + b.Blocked
		}
	}
	return total
}

// blocked returns the blocked amount for one row; used by invariant checks
func (bs *balanceStore) blocked(user uuid.UUID, ticker string) uint64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if b, ok := bs.rows[balanceKey{user: user, ticker: ticker}]; ok {
		return b.Blocked
	}
	return 0
}

// insufficientErr picks the error kind for a spendable shortfall
func insufficientErr(ticker string) *errorsmod.Error {
	if ticker == types.QuoteTicker {
		return types.ErrInsufficientFunds
	}
	return types.ErrInsufficientAsset
}
