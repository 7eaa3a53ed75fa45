package types

import (
	"context"

	"github.com/google/uuid"
)

// RegisterRequest is the body of POST /api/v1/public/register
type RegisterRequest struct {
	Name string `json:"name"`
}

// UserResponse represents a user in API responses. The api_key is the
// bearer credential for every authenticated endpoint.
type UserResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	APIKey string `json:"api_key"`
}

// InstrumentResponse represents a tradable instrument
type InstrumentResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// BookLevel is one aggregated price level of the order book
type BookLevel struct {
	Price uint64 `json:"price"`
	Qty   uint64 `json:"qty"`
}

// OrderBookResponse is the L2 snapshot of one ticker's book
type OrderBookResponse struct {
	BidLevels []BookLevel `json:"bid_levels"`
	AskLevels []BookLevel `json:"ask_levels"`
}

// TransactionResponse represents one executed trade
type TransactionResponse struct {
	Ticker    string `json:"ticker"`
	Amount    uint64 `json:"amount"`
	Price     uint64 `json:"price"`
	Timestamp string `json:"timestamp"`
}

// PlaceOrderRequest is the body of POST /api/v1/order. A present price
// makes it a limit order; an absent price makes it a market order.
type PlaceOrderRequest struct {
	Direction string  `json:"direction"`
	Ticker    string  `json:"ticker"`
	Qty       uint64  `json:"qty"`
	Price     *uint64 `json:"price,omitempty"`
}

// PlaceOrderResponse acknowledges an accepted order
type PlaceOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
}

// OrderBody mirrors the submitted parameters inside an order view
type OrderBody struct {
	Direction string  `json:"direction"`
	Ticker    string  `json:"ticker"`
	Qty       uint64  `json:"qty"`
	Price     *uint64 `json:"price,omitempty"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	Timestamp string    `json:"timestamp"`
	Body      OrderBody `json:"body"`
	Filled    uint64    `json:"filled"`
}

// DepositRequest is the body of POST /api/v1/admin/balance/deposit
type DepositRequest struct {
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Amount uint64 `json:"amount"`
}

// WithdrawRequest is the body of POST /api/v1/admin/balance/withdraw
type WithdrawRequest struct {
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Amount uint64 `json:"amount"`
}

// CreateInstrumentRequest is the body of POST /api/v1/admin/instrument
type CreateInstrumentRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// SuccessResponse is the generic acknowledgement body
type SuccessResponse struct {
	Success bool `json:"success"`
}

// PublicService defines the unauthenticated operations
type PublicService interface {
	Register(ctx context.Context, req *RegisterRequest) (*UserResponse, error)
	Instruments(ctx context.Context) ([]*InstrumentResponse, error)
	OrderBook(ctx context.Context, ticker string, limit int) (*OrderBookResponse, error)
	Transactions(ctx context.Context, ticker string, limit int) ([]*TransactionResponse, error)
}

// AccountService defines the operations of an authenticated user
type AccountService interface {
	Balances(ctx context.Context, userID uuid.UUID) (map[string]uint64, error)
}

// OrderService defines order submission and lifecycle operations
type OrderService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, req *PlaceOrderRequest) (*PlaceOrderResponse, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]*OrderResponse, error)
	GetOrder(ctx context.Context, userID uuid.UUID, orderID string) (*OrderResponse, error)
	CancelOrder(ctx context.Context, userID uuid.UUID, orderID string) error
}

// AdminService defines the admin-only operations
type AdminService interface {
	Deposit(ctx context.Context, req *DepositRequest) error
	Withdraw(ctx context.Context, req *WithdrawRequest) error
	CreateInstrument(ctx context.Context, req *CreateInstrumentRequest) error
	DeleteInstrument(ctx context.Context, ticker string) error
	DeleteUser(ctx context.Context, id string) (*UserResponse, error)
}
