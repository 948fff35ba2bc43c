package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"storygate/internal/apperr"
	"storygate/internal/identity"
	"storygate/pkg/logging/logging"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// generateRequest is the body accepted by the generation endpoints.
type generateRequest struct {
	Payload  any    `json:"payload"`
	Provider string `json:"provider,omitempty"`
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err by its kind. Internal details are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	logger := logging.L(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}

	writeJSON(w, status, errorBody{Error: apperr.MessageOf(err), Code: apperr.Code(kind)})
}

// decodeJSON reads a JSON body into dst. Empty bodies decode to the zero value.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Wrap(apperr.KindValidation, "request body too large", err)
	}
	return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
}

// decodeGenerate reads a generation body and requires a payload.
func decodeGenerate(r *http.Request) (generateRequest, error) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	if req.Payload == nil {
		return req, apperr.Validation("missing payload")
	}
	return req, nil
}

// caller returns the id set by the identity middleware.
func caller(r *http.Request) string {
	if id, ok := identity.CallerFrom(r.Context()); ok {
		return id
	}
	return identity.Anonymous
}
