package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/service"
)

const maxBody = 1 << 20

type errorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeFields(w http.ResponseWriter, fields []FieldError) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
}

// decode reads a JSON body. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// fail is the one place service errors become HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var te *service.TransitionError
	switch {
	case errors.As(err, &te):
		writeError(w, http.StatusBadRequest, te.Error())
	case errors.Is(err, service.ErrUnknownBranch):
		writeFields(w, []FieldError{{Field: "branchId", Message: err.Error()}})
	case errors.Is(err, service.ErrNotApplicable),
		errors.Is(err, service.ErrCommentRequired),
		errors.Is(err, service.ErrDuplicateUsername),
		errors.Is(err, service.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, service.ErrConflict.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		logging.WithContext(r.Context(), h.log).WithError(err).
			WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
