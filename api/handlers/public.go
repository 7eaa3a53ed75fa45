package handlers

import (
	"net/http"
	"strings"

	"github.com/openalpha/spot-exchange/api/types"
)

const (
	orderBookPrefix    = "/api/v1/public/orderbook/"
	transactionsPrefix = "/api/v1/public/transactions/"

	defaultDepthLimit = 10
	maxDepthLimit     = 25

	defaultTradesLimit = 10
	maxTradesLimit     = 100
)

// PublicHandler handles the unauthenticated endpoints
type PublicHandler struct {
	service types.PublicService
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(service types.PublicService) *PublicHandler {
	return &PublicHandler{service: service}
}

// HandleRegister handles POST /api/v1/public/register
func (h *PublicHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req types.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleInstruments handles GET /api/v1/public/instrument
func (h *PublicHandler) HandleInstruments(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	instruments, err := h.service.Instruments(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instruments)
}

// HandleOrderBook handles GET /api/v1/public/orderbook/{ticker}
func (h *PublicHandler) HandleOrderBook(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, orderBookPrefix)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "missing_ticker", "Ticker is required")
		return
	}
	limit, err := limitQuery(r, defaultDepthLimit, maxDepthLimit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	book, err := h.service.OrderBook(r.Context(), ticker, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleTransactions handles GET /api/v1/public/transactions/{ticker}
func (h *PublicHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, transactionsPrefix)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "missing_ticker", "Ticker is required")
		return
	}
	limit, err := limitQuery(r, defaultTradesLimit, maxTradesLimit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	trades, err := h.service.Transactions(r.Context(), ticker, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}
