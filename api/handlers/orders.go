package handlers

import (
	"net/http"
	"strings"

	"github.com/openalpha/spot-exchange/api/middleware"
	"github.com/openalpha/spot-exchange/api/types"
)

const orderPrefix = "/api/v1/order/"

// OrderHandler handles order-related HTTP requests. All its endpoints
// run behind the user auth middleware.
type OrderHandler struct {
	service types.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(service types.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// HandleOrders handles /api/v1/order (GET for list, POST for submit)
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listOrders(w, r)
	case http.MethodPost:
		h.placeOrder(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// HandleOrder handles /api/v1/order/{id} (GET, DELETE)
func (h *OrderHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimPrefix(r.URL.Path, orderPrefix)
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id", "Order ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getOrder(w, r, orderID)
	case http.MethodDelete:
		h.cancelOrder(w, r, orderID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// placeOrder handles POST /api/v1/order
func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req types.PlaceOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.PlaceOrder(r.Context(), user.ID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listOrders handles GET /api/v1/order
func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// getOrder handles GET /api/v1/order/{id}
func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	order, err := h.service.GetOrder(r.Context(), user.ID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// cancelOrder handles DELETE /api/v1/order/{id}
func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.service.CancelOrder(r.Context(), user.ID, orderID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}
