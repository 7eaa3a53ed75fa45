package api

import (
	"context"
	"regexp"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/api/types"
	"github.com/openalpha/spot-exchange/engine"
	extypes "github.com/openalpha/spot-exchange/exchange/types"
)

// Validation bounds. Prices and quantities are capped so that
// price*qty never overflows uint64.
const (
	maxQty     = 1 << 31
	maxPrice   = 1 << 31
	maxAmount  = 1 << 62
	minNameLen = 3
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// ExchangeService adapts the matching engine to the API service
// interfaces: it validates request shapes, translates between DTOs and
// engine types, and leaves all state transitions to the engine.
type ExchangeService struct {
	engine *engine.Engine
	logger log.Logger
}

// NewExchangeService creates the service facade over an engine
func NewExchangeService(eng *engine.Engine, logger log.Logger) *ExchangeService {
	return &ExchangeService{engine: eng, logger: logger.With("module", "api")}
}

// ---------------------------------------------------------------------
// PublicService
// ---------------------------------------------------------------------

// Register creates a new USER and returns it together with its api_key
func (s *ExchangeService) Register(_ context.Context, req *types.RegisterRequest) (*types.UserResponse, error) {
	if len(req.Name) < minNameLen {
		return nil, extypes.ErrValidation.Wrapf("name must be at least %d characters", minNameLen)
	}
	user := s.engine.RegisterUser(req.Name)
	return userResponse(user), nil
}

// Instruments lists all tradable instruments
func (s *ExchangeService) Instruments(_ context.Context) ([]*types.InstrumentResponse, error) {
	instruments := s.engine.Instruments()
	out := make([]*types.InstrumentResponse, 0, len(instruments))
	for _, ins := range instruments {
		out = append(out, &types.InstrumentResponse{Name: ins.Name, Ticker: ins.Ticker})
	}
	return out, nil
}

// OrderBook returns up to limit aggregated levels per side
func (s *ExchangeService) OrderBook(_ context.Context, ticker string, limit int) (*types.OrderBookResponse, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	bids, asks, err := s.engine.Depth(ticker, limit)
	if err != nil {
		return nil, err
	}
	resp := &types.OrderBookResponse{
		BidLevels: make([]types.BookLevel, 0, len(bids)),
		AskLevels: make([]types.BookLevel, 0, len(asks)),
	}
	for _, l := range bids {
		resp.BidLevels = append(resp.BidLevels, types.BookLevel{Price: l.Price, Qty: l.Qty})
	}
	for _, l := range asks {
		resp.AskLevels = append(resp.AskLevels, types.BookLevel{Price: l.Price, Qty: l.Qty})
	}
	return resp, nil
}

// Transactions returns the ticker's most recent trades, newest first
func (s *ExchangeService) Transactions(_ context.Context, ticker string, limit int) ([]*types.TransactionResponse, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	trades, err := s.engine.Trades(ticker, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*types.TransactionResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, &types.TransactionResponse{
			Ticker:    t.Ticker,
			Amount:    t.Qty,
			Price:     t.Price,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------
// AccountService
// ---------------------------------------------------------------------

// Balances returns the caller's spendable amounts by ticker
func (s *ExchangeService) Balances(_ context.Context, userID uuid.UUID) (map[string]uint64, error) {
	return s.engine.Balances(userID)
}

// ---------------------------------------------------------------------
// OrderService
// ---------------------------------------------------------------------

// PlaceOrder validates and submits an order. A present price makes it a
// limit order; otherwise it is matched as a market order. The order id
// comes back even when a market order ends REJECTED after partial fills.
func (s *ExchangeService) PlaceOrder(_ context.Context, userID uuid.UUID, req *types.PlaceOrderRequest) (*types.PlaceOrderResponse, error) {
	direction, err := extypes.ParseDirection(req.Direction)
	if err != nil {
		return nil, extypes.ErrValidation.Wrap(err.Error())
	}
	if err := validateTicker(req.Ticker); err != nil {
		return nil, err
	}
	if req.Qty < 1 || req.Qty > maxQty {
		return nil, extypes.ErrValidation.Wrapf("qty must be between 1 and %d", maxQty)
	}

	var order *extypes.Order
	if req.Price != nil {
		price := *req.Price
		if price < 1 || price > maxPrice {
			return nil, extypes.ErrValidation.Wrapf("price must be between 1 and %d", maxPrice)
		}
		order, err = s.engine.PlaceLimitOrder(userID, req.Ticker, direction, req.Qty, price)
	} else {
		order, err = s.engine.PlaceMarketOrder(userID, req.Ticker, direction, req.Qty)
	}
	if err != nil {
		return nil, err
	}
	return &types.PlaceOrderResponse{Success: true, OrderID: order.ID.String()}, nil
}

// ListOrders returns the caller's orders in submission order
func (s *ExchangeService) ListOrders(_ context.Context, userID uuid.UUID) ([]*types.OrderResponse, error) {
	if _, err := s.engine.User(userID); err != nil {
		return nil, err
	}
	orders := s.engine.Orders(userID)
	out := make([]*types.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	return out, nil
}

// GetOrder returns one of the caller's orders
func (s *ExchangeService) GetOrder(_ context.Context, userID uuid.UUID, orderID string) (*types.OrderResponse, error) {
	id, err := parseID(orderID, "order id")
	if err != nil {
		return nil, err
	}
	order, err := s.engine.Order(userID, id)
	if err != nil {
		return nil, err
	}
	return orderResponse(order), nil
}

// CancelOrder cancels one of the caller's live limit orders
func (s *ExchangeService) CancelOrder(_ context.Context, userID uuid.UUID, orderID string) error {
	id, err := parseID(orderID, "order id")
	if err != nil {
		return err
	}
	return s.engine.CancelOrder(userID, id)
}

// ---------------------------------------------------------------------
// AdminService
// ---------------------------------------------------------------------

// Deposit credits a user's spendable balance
func (s *ExchangeService) Deposit(_ context.Context, req *types.DepositRequest) error {
	userID, err := parseID(req.UserID, "user id")
	if err != nil {
		return err
	}
	if err := validateTickerOrQuote(req.Ticker); err != nil {
		return err
	}
	if req.Amount < 1 || req.Amount > maxAmount {
		return extypes.ErrValidation.Wrap("amount must be a positive integer")
	}
	return s.engine.Deposit(userID, req.Ticker, req.Amount)
}

// Withdraw debits a user's spendable balance
func (s *ExchangeService) Withdraw(_ context.Context, req *types.WithdrawRequest) error {
	userID, err := parseID(req.UserID, "user id")
	if err != nil {
		return err
	}
	if err := validateTickerOrQuote(req.Ticker); err != nil {
		return err
	}
	if req.Amount < 1 || req.Amount > maxAmount {
		return extypes.ErrValidation.Wrap("amount must be a positive integer")
	}
	return s.engine.Withdraw(userID, req.Ticker, req.Amount)
}

// CreateInstrument registers a new tradable instrument
func (s *ExchangeService) CreateInstrument(_ context.Context, req *types.CreateInstrumentRequest) error {
	if err := validateTicker(req.Ticker); err != nil {
		return err
	}
	if req.Name == "" {
		return extypes.ErrValidation.Wrap("name is required")
	}
	return s.engine.CreateInstrument(req.Ticker, req.Name)
}

// DeleteInstrument delists an instrument, unwinding its live orders
func (s *ExchangeService) DeleteInstrument(_ context.Context, ticker string) error {
	if err := validateTicker(ticker); err != nil {
		return err
	}
	return s.engine.DeleteInstrument(ticker)
}

// DeleteUser removes a user and returns the deleted snapshot
func (s *ExchangeService) DeleteUser(_ context.Context, id string) (*types.UserResponse, error) {
	userID, err := parseID(id, "user id")
	if err != nil {
		return nil, err
	}
	user, err := s.engine.DeleteUser(userID)
	if err != nil {
		return nil, err
	}
	return userResponse(user), nil
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

func validateTicker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return extypes.ErrValidation.Wrapf("ticker %q must match %s", ticker, tickerPattern)
	}
	return nil
}

// validateTickerOrQuote additionally admits the quote currency, which
// balance operations may reference but trading may not.
func validateTickerOrQuote(ticker string) error {
	if ticker == extypes.QuoteTicker {
		return nil
	}
	return validateTicker(ticker)
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, extypes.ErrValidation.Wrapf("%s is not a valid UUID", field)
	}
	return id, nil
}

func userResponse(user *extypes.User) *types.UserResponse {
	return &types.UserResponse{
		ID:     user.ID.String(),
		Name:   user.Name,
		Role:   string(user.Role),
		APIKey: user.APIKey.String(),
	}
}

func orderResponse(o *extypes.Order) *types.OrderResponse {
	resp := &types.OrderResponse{
		ID:        o.ID.String(),
		Status:    o.Status.String(),
		UserID:    o.UserID.String(),
		Timestamp: o.Timestamp.UTC().Format(time.RFC3339Nano),
		Body: types.OrderBody{
			Direction: o.Direction.String(),
			Ticker:    o.Ticker,
			Qty:       o.Qty(),
		},
		Filled: o.Filled(),
	}
	if o.IsLimit() {
		price := o.Limit.Price
		resp.Body.Price = &price
	}
	return resp
}
