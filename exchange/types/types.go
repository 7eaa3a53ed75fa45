package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuoteTicker is the quote currency all prices are denominated in.
// It is always a valid balance ticker and is never traded directly.
const QuoteTicker = "RUB"

// Role represents a user role
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a registered user
type User struct {
	ID     uuid.UUID
	Name   string
	Role   Role
	APIKey uuid.UUID
}

// NewUser creates a new user with a fresh ID and API key
func NewUser(name string, role Role) *User {
	return &User{
		ID:     uuid.New(),
		Name:   name,
		Role:   role,
		APIKey: uuid.New(),
	}
}

// Instrument represents a tradable asset
type Instrument struct {
	Ticker string
	Name   string
}

// Balance is the per (user, ticker) balance row. Amount is spendable,
// Blocked backs the user's live limit orders.
type Balance struct {
	UserID  uuid.UUID
	Ticker  string
	Amount  uint64
	Blocked uint64
}

// Direction represents order direction
type Direction int

const (
	DirectionUnspecified Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "BUY"
	case DirectionSell:
		return "SELL"
	default:
		return "UNSPECIFIED"
	}
}

func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// ParseDirection parses a wire direction value
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "BUY":
		return DirectionBuy, nil
	case "SELL":
		return DirectionSell, nil
	default:
		return DirectionUnspecified, fmt.Errorf("invalid direction %q", s)
	}
}

// OrderStatus represents order status
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusNew
	OrderStatusPartiallyExecuted
	OrderStatusExecuted
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case OrderStatusExecuted:
		return "EXECUTED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNSPECIFIED"
	}
}

// MarketDetails is the market order payload. Filled tracks how much of
// Qty actually traded before the book or the balance ran out.
type MarketDetails struct {
	Qty    uint64
	Filled uint64
}

// LimitDetails is the limit order payload. OriginalQty is immutable,
// Filled is the only mutable quantity field.
type LimitDetails struct {
	Price       uint64
	OriginalQty uint64
	Filled      uint64
}

// Order is a tagged variant: a shared header plus exactly one of the
// Market or Limit payloads.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Direction Direction
	Status    OrderStatus
	Timestamp time.Time

	Market *MarketDetails
	Limit  *LimitDetails
}

// NewLimitOrder creates a resting-capable limit order in status NEW
func NewLimitOrder(userID uuid.UUID, ticker string, direction Direction, qty, price uint64) *Order {
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: direction,
		Status:    OrderStatusNew,
		Timestamp: time.Now(),
		Limit:     &LimitDetails{Price: price, OriginalQty: qty},
	}
}

// NewMarketOrder creates a market order. Its terminal status is decided
// by the engine at submission time.
func NewMarketOrder(userID uuid.UUID, ticker string, direction Direction, qty uint64) *Order {
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: direction,
		Status:    OrderStatusNew,
		Timestamp: time.Now(),
		Market:    &MarketDetails{Qty: qty},
	}
}

// IsLimit reports whether the order carries the limit payload
func (o *Order) IsLimit() bool {
	return o.Limit != nil
}

// Qty returns the requested quantity (original_qty for limit orders)
func (o *Order) Qty() uint64 {
	if o.IsLimit() {
		return o.Limit.OriginalQty
	}
	return o.Market.Qty
}

// Filled returns the cumulative filled quantity
func (o *Order) Filled() uint64 {
	if o.IsLimit() {
		return o.Limit.Filled
	}
	return o.Market.Filled
}

// RemainingQty returns the remaining unfilled quantity
func (o *Order) RemainingQty() uint64 {
	return o.Qty() - o.Filled()
}

// IsLive reports whether a limit order is still on the book.
// Market orders are never live.
func (o *Order) IsLive() bool {
	if !o.IsLimit() {
		return false
	}
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyExecuted
}

// Fill records a fill of qty and moves a limit order through
// NEW -> PARTIALLY_EXECUTED -> EXECUTED. Market order status stays with
// the engine, which knows why matching stopped.
func (o *Order) Fill(qty uint64) error {
	if qty > o.RemainingQty() {
		return fmt.Errorf("fill quantity %d exceeds remaining %d", qty, o.RemainingQty())
	}
	if o.IsLimit() {
		o.Limit.Filled += qty
		if o.Limit.Filled == o.Limit.OriginalQty {
			o.Status = OrderStatusExecuted
		} else {
			o.Status = OrderStatusPartiallyExecuted
		}
		return nil
	}
	o.Market.Filled += qty
	return nil
}

// Cancel marks the order cancelled. Cancellation of terminal or market
// orders is rejected upstream.
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

// Clone returns an independent copy of the order, detaching the payload
// pointer so later fills do not show through.
func (o *Order) Clone() *Order {
	c := *o
	if o.Market != nil {
		m := *o.Market
		c.Market = &m
	}
	if o.Limit != nil {
		l := *o.Limit
		c.Limit = &l
	}
	return &c
}

// Trade represents an executed match. Only Ticker, Qty, Price and
// Timestamp are public; the order and user references exist for
// bookkeeping and audits.
type Trade struct {
	Ticker       string
	Qty          uint64
	Price        uint64
	Timestamp    time.Time
	TakerOrderID uuid.UUID
	MakerOrderID uuid.UUID
	Buyer        uuid.UUID
	Seller       uuid.UUID
}

// NewTrade creates a trade record for a match between the incoming
// (taker) order and a resting (maker) counter-order.
func NewTrade(taker, maker *Order, qty, price uint64) *Trade {
	t := &Trade{
		Ticker:       taker.Ticker,
		Qty:          qty,
		Price:        price,
		Timestamp:    time.Now(),
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
	}
	if taker.Direction == DirectionBuy {
		t.Buyer, t.Seller = taker.UserID, maker.UserID
	} else {
		t.Buyer, t.Seller = maker.UserID, taker.UserID
	}
	return t
}

// BookLevel is one aggregated price level of the order book projection
type BookLevel struct {
	Price uint64
	Qty   uint64
}
