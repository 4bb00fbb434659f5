package handlers

import (
	"encoding/json"
	"net/http"

	"creature-catalog-api/internal/models"
)

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// writeCatalogError maps a pipeline error to its HTTP status and the
// user-facing message
func writeCatalogError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeErrorResponse(w, status, code, models.UserMessage(err), nil)
}

func statusForError(err error) (int, string) {
	switch models.KindOf(err) {
	case models.ErrNoConnectivity:
		return http.StatusServiceUnavailable, "no_connectivity"
	case models.ErrServer:
		return http.StatusBadGateway, "upstream_error"
	case models.ErrTimeout:
		return http.StatusGatewayTimeout, "timeout"
	case models.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case models.ErrInvalidArgument:
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
