// Package api implements the REST surface of the push gateway.
//
// Every error body has the shape {success:false, error:..., errorCode?:...};
// provider failures additionally carry the provider's error code.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// writeDispatchError maps the dispatcher's error taxonomy onto HTTP statuses:
// validation problems are 400, unknown token ids 404, provider failures use
// their classified status with the provider code attached.
func writeDispatchError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token not found")
	default:
		sendErr := push.AsSendError(err)
		logger.Error("send failed", "code", sendErr.Code(), "err", err)
		writeJSON(w, sendErr.HTTPStatus(), map[string]any{
			"success":   false,
			"error":     sendErr.Message,
			"errorCode": sendErr.Code(),
		})
	}
}
