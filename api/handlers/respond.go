package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	extypes "github.com/openalpha/spot-exchange/exchange/types"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// writeServiceError maps a service error to its HTTP status. Domain
// rejections (insufficient funds, no liquidity, conflicts) come back as
// 400; shape violations as 422.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, extypes.ErrValidation):
		status, code = http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, extypes.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, extypes.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, extypes.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, extypes.ErrInsufficientFunds):
		status, code = http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, extypes.ErrInsufficientAsset):
		status, code = http.StatusBadRequest, "insufficient_asset"
	case errors.Is(err, extypes.ErrIllegalState):
		status, code = http.StatusBadRequest, "illegal_state"
	case errors.Is(err, extypes.ErrConflict):
		status, code = http.StatusBadRequest, "conflict"
	}
	writeError(w, status, code, err.Error())
}

// decodeJSON decodes the request body into dst. A malformed body is a
// 400; a well-formed body with wrongly typed fields is a 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error",
				fmt.Sprintf("field %q has the wrong type", typeErr.Field))
		} else {
			writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		}
		return false
	}
	return true
}

// limitQuery parses the optional ?limit= parameter
func limitQuery(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, extypes.ErrValidation.Wrapf("limit %q must be a positive integer", raw)
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
