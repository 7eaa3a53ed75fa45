package handlers

import (
	"net/http"
	"strings"

	"github.com/openalpha/spot-exchange/api/types"
)

const (
	adminInstrumentPrefix = "/api/v1/admin/instrument/"
	adminUserPrefix       = "/api/v1/admin/user/"
)

// AdminHandler handles the admin-only endpoints. Role enforcement is
// done by the admin auth middleware.
type AdminHandler struct {
	service types.AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service types.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// HandleDeposit handles POST /api/v1/admin/balance/deposit
func (h *AdminHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req types.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.Deposit(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandleWithdraw handles POST /api/v1/admin/balance/withdraw
func (h *AdminHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req types.WithdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.Withdraw(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandleInstrument handles POST /api/v1/admin/instrument
func (h *AdminHandler) HandleInstrument(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req types.CreateInstrumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.CreateInstrument(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandleInstrumentDelete handles DELETE /api/v1/admin/instrument/{ticker}
func (h *AdminHandler) HandleInstrumentDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	ticker := strings.TrimPrefix(r.URL.Path, adminInstrumentPrefix)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "missing_ticker", "Ticker is required")
		return
	}
	if err := h.service.DeleteInstrument(r.Context(), ticker); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuccessResponse{Success: true})
}

// HandleUserDelete handles DELETE /api/v1/admin/user/{id}
func (h *AdminHandler) HandleUserDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, adminUserPrefix)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "User ID is required")
		return
	}
	user, err := h.service.DeleteUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
