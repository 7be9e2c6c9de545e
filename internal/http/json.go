package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// writeServiceError maps domain and repository errors onto HTTP statuses.
// Unrecognised errors become a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainauth.ErrAuthenticationFailed):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_failed", Err: domainauth.ErrAuthenticationFailed})
	case errors.Is(err, domainauth.ErrSessionNotFound),
		errors.Is(err, domainauth.ErrSessionTimedOut),
		errors.Is(err, domainauth.ErrSessionLoggedOut):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "session_invalid", Err: err})
	case errors.Is(err, domainauth.ErrNotAuthorized):
		WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "insufficient_permissions", Err: err})
	case errors.Is(err, domainauth.ErrUnknownRole),
		errors.Is(err, domainauth.ErrUnknownMethod),
		errors.Is(err, domainauth.ErrInvalidIdentity),
		apperrors.IsValidation(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
	case apperrors.IsNotFound(err):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case apperrors.IsConflict(err):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	case errors.Is(err, service.ErrNoActiveTerm):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "no_active_term", Err: err})
	case errors.Is(err, service.ErrSourceUnavailable):
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "source_unavailable", Err: err})
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal_error",
			Err:     errors.New(http.StatusText(http.StatusInternalServerError)),
		})
	}
}
