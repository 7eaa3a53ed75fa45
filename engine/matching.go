package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/exchange/types"
	"github.com/openalpha/spot-exchange/metrics"
)

// stopReason records why a matching walk ended before the incoming
// order was fully filled.
type stopReason int

const (
	stopExhausted stopReason = iota // book ran out or prices stopped crossing
	stopShort                       // market order's spendable balance ran out
	stopCorrupt                     // counter-order reservation below its fills
)

// PlaceLimitOrder reserves the order's funds, matches it against the
// opposite side of the book in price-time priority and rests any
// remainder. The whole submission runs under the ticker lock.
func (e *Engine) PlaceLimitOrder(userID uuid.UUID, ticker string, direction types.Direction, qty, price uint64) (*types.Order, error) {
	if _, err := e.User(userID); err != nil {
		return nil, err
	}
	if !e.tradable(ticker) {
		return nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}

	tb := e.getBook(ticker)
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Re-check under the ticker lock: a concurrent delisting wins.
	if !e.tradable(ticker) {
		return nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}

	if direction == types.DirectionBuy {
		if err := e.balances.Reserve(userID, types.QuoteTicker, price*qty); err != nil {
			return nil, err
		}
	} else {
		if err := e.balances.Reserve(userID, ticker, qty); err != nil {
			return nil, err
		}
	}

	order := types.NewLimitOrder(userID, ticker, direction, qty, price)
	start := time.Now()
	trades, _, matchErr := e.matchAgainstBook(tb.book, order)

	if order.IsLive() {
		tb.book.addOrder(order)
	}
	e.recordOrder(order)
	e.recordTrades(ticker, trades)
	e.observeMatch(order, "limit", trades, start)
	e.logger.Info("limit order processed",
		"order_id", order.ID, "ticker", ticker, "direction", direction.String(),
		"status", order.Status.String(), "filled", order.Filled())

	if matchErr != nil {
		// State is consistent: committed trades stand, the order is
		// finalized at its current fill. Surface the anomaly.
		return order, matchErr
	}
	return order, nil
}

// PlaceMarketOrder matches immediately against the book with no price
// cap and no pre-reservation. It ends EXECUTED when fully filled, or
// when the caller's balance ran out after at least one trade; it ends
// REJECTED otherwise, keeping the debits of any executed trades.
func (e *Engine) PlaceMarketOrder(userID uuid.UUID, ticker string, direction types.Direction, qty uint64) (*types.Order, error) {
	if _, err := e.User(userID); err != nil {
		return nil, err
	}
	if !e.tradable(ticker) {
		return nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}

	tb := e.getBook(ticker)
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Re-check under the ticker lock: a concurrent delisting wins.
	if !e.tradable(ticker) {
		return nil, types.ErrNotFound.Wrapf("instrument %s", ticker)
	}

	order := types.NewMarketOrder(userID, ticker, direction, qty)
	start := time.Now()
	trades, stop, matchErr := e.matchAgainstBook(tb.book, order)

	var err error
	switch {
	case order.RemainingQty() == 0:
		order.Status = types.OrderStatusExecuted
	case stop == stopShort:
		if len(trades) > 0 {
			// Remainder discarded, fills kept.
			order.Status = types.OrderStatusExecuted
		} else {
			order.Status = types.OrderStatusRejected
			if direction == types.DirectionBuy {
				err = types.ErrInsufficientFunds.Wrap("market order cannot cover first trade")
			} else {
				err = types.ErrInsufficientAsset.Wrapf("market order cannot deliver %s", ticker)
			}
		}
	default:
		order.Status = types.OrderStatusRejected
		if len(trades) == 0 && matchErr == nil {
			err = types.ErrIllegalState.Wrapf("no liquidity for market %s on %s", direction, ticker)
		}
	}
	if matchErr != nil {
		err = matchErr
	}

	e.recordOrder(order)
	e.recordTrades(ticker, trades)
	e.observeMatch(order, "market", trades, start)
	e.logger.Info("market order processed",
		"order_id", order.ID, "ticker", ticker, "direction", direction.String(),
		"status", order.Status.String(), "filled", order.Filled())

	return order, err
}

// CancelOrder refunds the remaining reservation of a live limit order
// owned by the caller and marks it CANCELLED.
func (e *Engine) CancelOrder(userID, orderID uuid.UUID) error {
	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok || order.UserID != userID {
		return types.ErrNotFound.Wrapf("order %s", orderID)
	}
	if !order.IsLimit() {
		return types.ErrIllegalState.Wrap("market orders cannot be cancelled")
	}

	tb := e.getBook(order.Ticker)
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return e.cancelLocked(tb, order)
}

// cancelLocked refunds the remaining reservation of a live limit order
// and removes it from the book. Caller holds the ticker lock.
func (e *Engine) cancelLocked(tb *tickerBook, order *types.Order) error {
	if !order.IsLive() {
		return types.ErrIllegalState.Wrapf("order is %s", order.Status)
	}

	remaining := order.RemainingQty()
	var err error
	if order.Direction == types.DirectionBuy {
		err = e.balances.Release(order.UserID, types.QuoteTicker, order.Limit.Price*remaining)
	} else {
		err = e.balances.Release(order.UserID, order.Ticker, remaining)
	}
	if err != nil {
		e.logger.Error("cancel refund failed", "order_id", order.ID, "err", err)
		return err
	}

	tb.book.removeOrder(order)
	order.Cancel()
	e.logger.Info("order cancelled", "order_id", order.ID, "refunded_qty", remaining)
	return nil
}

// matchAgainstBook walks the opposite side of the book in price-time
// priority and settles one trade at a time. Counter-orders of the same
// user are skipped. Caller holds the ticker lock.
func (e *Engine) matchAgainstBook(book *orderBook, taker *types.Order) ([]*types.Trade, stopReason, error) {
	trades := make([]*types.Trade, 0)
	stop := stopExhausted
	var matchErr error

	counterSide := taker.Direction.Opposite()
	emptyLevels := make([]uint64, 0)

	book.iterateSide(counterSide, func(level *priceLevel) bool {
		if taker.RemainingQty() == 0 {
			return false
		}
		if !crosses(taker, level.price) {
			return false
		}

		halted := false
		doneOrders := make([]uuid.UUID, 0)

		for _, maker := range level.orders {
			if taker.RemainingQty() == 0 {
				break
			}
			if !maker.IsLive() {
				doneOrders = append(doneOrders, maker.ID)
				continue
			}
			if maker.UserID == taker.UserID {
				// Self-trade prevention: never match, keep walking.
				continue
			}

			q := minQty(taker.RemainingQty(), maker.RemainingQty())
			if err := e.balances.Settle(buildSettlement(taker, maker, q, level.price)); err != nil {
				if errors.Is(err, errSettlementShort) {
					stop = stopShort
				} else {
					// A resting order whose reservation no longer covers
					// its remainder means an invariant broke upstream.
					e.logger.Error("corrupted counter-order, matching stopped",
						"order_id", maker.ID, "ticker", taker.Ticker, "err", err)
					stop = stopCorrupt
					matchErr = types.ErrInternal.Wrapf("counter-order %s reservation corrupt", maker.ID)
				}
				halted = true
				break
			}

			if err := maker.Fill(q); err != nil {
				matchErr = types.ErrInternal.Wrap(err.Error())
				stop = stopCorrupt
				halted = true
				break
			}
			_ = taker.Fill(q)
			trades = append(trades, types.NewTrade(taker, maker, q, level.price))

			if maker.RemainingQty() == 0 {
				doneOrders = append(doneOrders, maker.ID)
			}
		}

		for _, id := range doneOrders {
			level.removeOrder(id)
		}
		if level.isEmpty() {
			emptyLevels = append(emptyLevels, level.price)
		} else {
			level.updateQuantity()
		}

		return !halted
	})

	for _, price := range emptyLevels {
		book.removeLevel(price, counterSide)
	}

	return trades, stop, matchErr
}

// crosses reports whether the incoming order's price still crosses the
// counter level. Market orders never impose a cap.
func crosses(taker *types.Order, counterPrice uint64) bool {
	if !taker.IsLimit() {
		return true
	}
	if taker.Direction == types.DirectionBuy {
		return taker.Limit.Price >= counterPrice
	}
	return taker.Limit.Price <= counterPrice
}

// buildSettlement identifies buyer and seller and which legs settle out
// of blocked reservations. Trades execute at the resting order's price;
// the maker is always a live limit order.
func buildSettlement(taker, maker *types.Order, qty, price uint64) settlement {
	s := settlement{ticker: taker.Ticker, qty: qty, price: price}
	if taker.Direction == types.DirectionBuy {
		s.buyer, s.seller = taker.UserID, maker.UserID
		if taker.IsLimit() {
			s.buyerFromBlocked = true
			s.buyerLimitPrice = taker.Limit.Price
		}
		s.sellerFromBlocked = true
	} else {
		s.buyer, s.seller = maker.UserID, taker.UserID
		s.buyerFromBlocked = true
		s.buyerLimitPrice = maker.Limit.Price
		s.sellerFromBlocked = taker.IsLimit()
	}
	return s
}

func minQty(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// tradable reports whether orders may be placed on the ticker
func (e *Engine) tradable(ticker string) bool {
	return ticker != types.QuoteTicker && e.hasInstrument(ticker)
}

// observeMatch records order and trade metrics
func (e *Engine) observeMatch(order *types.Order, kind string, trades []*types.Trade, start time.Time) {
	c := metrics.GetCollector()
	c.OrdersTotal.WithLabelValues(order.Ticker, order.Direction.String(), kind, order.Status.String()).Inc()
	c.MatchingLatency.WithLabelValues(order.Ticker).Observe(time.Since(start).Seconds())
	for _, t := range trades {
		c.TradesTotal.WithLabelValues(t.Ticker).Inc()
		c.TradeVolume.WithLabelValues(t.Ticker).Add(float64(t.Qty))
	}
}
