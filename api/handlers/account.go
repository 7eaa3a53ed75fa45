package handlers

import (
	"net/http"

	"github.com/openalpha/spot-exchange/api/middleware"
	"github.com/openalpha/spot-exchange/api/types"
)

// AccountHandler handles the authenticated account endpoints
type AccountHandler struct {
	service types.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(service types.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// HandleBalance handles GET /api/v1/balance
func (h *AccountHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	balances, err := h.service.Balances(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}
