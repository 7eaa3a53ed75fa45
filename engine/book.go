package engine

import (
	"github.com/google/uuid"
	"github.com/huandu/skiplist"

	"github.com/openalpha/spot-exchange/exchange/types"
)

// priceLevel is a price level with live limit orders in FIFO order
type priceLevel struct {
	price    uint64
	quantity uint64 // sum of remaining over orders
	orders   []*types.Order
}

func newPriceLevel(price uint64) *priceLevel {
	return &priceLevel{price: price, orders: make([]*types.Order, 0)}
}

func (pl *priceLevel) addOrder(order *types.Order) {
	pl.orders = append(pl.orders, order)
	pl.quantity += order.RemainingQty()
}

func (pl *priceLevel) removeOrder(orderID uuid.UUID) *types.Order {
	for i, o := range pl.orders {
		if o.ID == orderID {
			pl.orders = append(pl.orders[:i], pl.orders[i+1:]...)
			pl.updateQuantity()
			return o
		}
	}
	return nil
}

// updateQuantity recalculates the aggregate after fills mutated orders in place
func (pl *priceLevel) updateQuantity() {
	total := uint64(0)
	for _, o := range pl.orders {
		total += o.RemainingQty()
	}
	pl.quantity = total
}

func (pl *priceLevel) isEmpty() bool {
	return len(pl.orders) == 0
}

// priceKeyAsc orders skiplist keys by ascending price (asks)
type priceKeyAsc struct{}

func (k priceKeyAsc) Compare(lhs, rhs interface{}) int {
	l := lhs.(uint64)
	r := rhs.(uint64)
	if l < r {
		return -1
	}
	if l > r {
		return 1
	}
	return 0
}

func (k priceKeyAsc) CalcScore(key interface{}) float64 {
	return float64(key.(uint64))
}

// priceKeyDesc orders skiplist keys by descending price (bids)
type priceKeyDesc struct{}

func (k priceKeyDesc) Compare(lhs, rhs interface{}) int {
	l := lhs.(uint64)
	r := rhs.(uint64)
	if l > r {
		return -1
	}
	if l < r {
		return 1
	}
	return 0
}

func (k priceKeyDesc) CalcScore(key interface{}) float64 {
	return -float64(key.(uint64))
}

// orderBook keeps one side per skiplist so the best price is the front
// element on both sides. Not safe for concurrent use; the engine holds
// the per-ticker lock around every access.
type orderBook struct {
	ticker string
	bids   *skiplist.SkipList // descending by price (highest first)
	asks   *skiplist.SkipList // ascending by price (lowest first)
}

func newOrderBook(ticker string) *orderBook {
	return &orderBook{
		ticker: ticker,
		bids:   skiplist.New(priceKeyDesc{}),
		asks:   skiplist.New(priceKeyAsc{}),
	}
}

func (ob *orderBook) side(direction types.Direction) *skiplist.SkipList {
	if direction == types.DirectionBuy {
		return ob.bids
	}
	return ob.asks
}

// addOrder inserts a live limit order into its price level - O(log n)
func (ob *orderBook) addOrder(order *types.Order) {
	list := ob.side(order.Direction)

	elem := list.Get(order.Limit.Price)
	var level *priceLevel
	if elem != nil {
		level = elem.Value.(*priceLevel)
	} else {
		level = newPriceLevel(order.Limit.Price)
		list.Set(order.Limit.Price, level)
	}
	level.addOrder(order)
}

// removeOrder removes an order and drops its level if it became empty
func (ob *orderBook) removeOrder(order *types.Order) *types.Order {
	list := ob.side(order.Direction)

	elem := list.Get(order.Limit.Price)
	if elem == nil {
		return nil
	}
	level := elem.Value.(*priceLevel)
	removed := level.removeOrder(order.ID)
	if level.isEmpty() {
		list.Remove(order.Limit.Price)
	}
	return removed
}

// removeLevel drops a price level from the given side
func (ob *orderBook) removeLevel(price uint64, direction types.Direction) {
	ob.side(direction).Remove(price)
}

// iterateSide walks the side's levels in price order (best first) until
// fn returns false.
func (ob *orderBook) iterateSide(direction types.Direction, fn func(level *priceLevel) bool) {
	elem := ob.side(direction).Front()
	for elem != nil {
		if !fn(elem.Value.(*priceLevel)) {
			break
		}
		elem = elem.Next()
	}
}

// levels returns up to n aggregated levels for the given side, best first
func (ob *orderBook) levels(direction types.Direction, n int) []types.BookLevel {
	out := make([]types.BookLevel, 0, n)
	elem := ob.side(direction).Front()
	for i := 0; i < n && elem != nil; i++ {
		level := elem.Value.(*priceLevel)
		out = append(out, types.BookLevel{Price: level.price, Qty: level.quantity})
		elem = elem.Next()
	}
	return out
}

// depth returns the number of price levels on each side
func (ob *orderBook) depth() (bidLevels, askLevels int) {
	return ob.bids.Len(), ob.asks.Len()
}
