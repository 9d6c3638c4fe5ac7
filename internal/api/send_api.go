package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Dispatcher is the send surface the API needs.
type Dispatcher interface {
	Send(ctx context.Context, req *push.SendRequest) (string, error)
	SendToStored(ctx context.Context, tokenID string, req *push.SendRequest) (string, error)
	Broadcast(ctx context.Context, title, body string, data map[string]any) (*dispatch.BroadcastResult, error)
}

type SendAPI struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewSendAPI(dispatcher Dispatcher, logger *slog.Logger) *SendAPI {
	return &SendAPI{
		dispatcher: dispatcher,
		logger:     logger.With("component", "SendAPI"),
	}
}

// SendNotification handles POST /send-notification: one message to a raw
// token, a topic or a condition.
func (a *SendAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req push.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	messageID, err := a.dispatcher.Send(r.Context(), &req)
	if err != nil {
		writeDispatchError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": messageID,
	})
}

// SendToToken handles POST /tokens/{id}/send: one message addressed to a
// registered token by its id.
func (a *SendAPI) SendToToken(w http.ResponseWriter, r *http.Request) {
	var req push.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	tokenID := r.PathValue("id")
	messageID, err := a.dispatcher.SendToStored(r.Context(), tokenID, &req)
	if err != nil {
		writeDispatchError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": messageID,
		"tokenId":   tokenID,
	})
}

type broadcastRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// Broadcast handles POST /broadcast: fan the notification out to every
// registered device.
func (a *SendAPI) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := a.dispatcher.Broadcast(r.Context(), req.Title, req.Body, req.Data)
	if err != nil {
		writeDispatchError(w, a.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}
