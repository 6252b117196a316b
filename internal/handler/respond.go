package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	Retryable         bool   `json:"retryable"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Details           string `json:"details,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn("Failed to encode response", "error", err)
	}
}

// writeError renders err with its localized message. Raw error text is only
// included in development.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	body := errorBody{
		Error:     kind.UserMessage(),
		Code:      string(kind),
		Retryable: kind.Retryable(),
	}
	if s := kind.RetryAfter(); s > 0 {
		body.RetryAfterSeconds = s
		w.Header().Set("Retry-After", strconv.Itoa(s))
	}
	if h.dev {
		body.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.log.Info("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.New(apperr.KindValidation, "malformed JSON body", err)
	}
	return nil
}
