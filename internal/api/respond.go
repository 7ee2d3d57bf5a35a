package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/wayfinder/internal/observe"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"message":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// fail logs err and writes msg. Client errors carry err's text; server
// errors do not.
func (s *Server) fail(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	body := errorBody{Message: msg}
	if status >= http.StatusInternalServerError {
		observe.Logger(ctx).Error("api: request failed", "status", status, "msg", msg, "err", err)
	} else if err != nil {
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v, rejecting unknown fields. An empty body
// leaves v untouched when allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) logger(ctx context.Context) *slog.Logger {
	return observe.Logger(ctx)
}
