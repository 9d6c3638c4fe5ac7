package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// FCM registration tokens are long opaque strings; anything outside this
// range is some other credential pasted into the wrong field.
const (
	minTokenLen = 100
	maxTokenLen = 200
)

type TokenAPI struct {
	store  push.TokenStore
	logger *slog.Logger
}

func NewTokenAPI(store push.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		store:  store,
		logger: logger.With("component", "TokenAPI"),
	}
}

// tokenSummary is the list/registration view; the full token string is only
// exposed by the single-record endpoint.
type tokenSummary struct {
	ID         string         `json:"id"`
	Token      string         `json:"token"`
	DeviceInfo map[string]any `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastUsed   time.Time      `json:"lastUsed"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func summarize(rec *push.TokenRecord) tokenSummary {
	return tokenSummary{
		ID:         rec.ID,
		Token:      rec.TruncatedToken(),
		DeviceInfo: rec.DeviceInfo,
		CreatedAt:  rec.CreatedAt,
		LastUsed:   rec.LastUsed,
		Metadata:   rec.Metadata,
	}
}

// ListTokens handles GET /tokens.
func (a *TokenAPI) ListTokens(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.List(r.Context())
	if err != nil {
		a.logger.Error("failed to list tokens", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load tokens")
		return
	}

	summaries := make([]tokenSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, summarize(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(records),
		"tokens":  summaries,
	})
}

// GetToken handles GET /tokens/{id}. This endpoint returns the full token.
func (a *TokenAPI) GetToken(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.logger.Error("failed to load token", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load token")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   rec,
	})
}

type registerTokenRequest struct {
	Token      string         `json:"token"`
	DeviceInfo map[string]any `json:"deviceInfo"`
	Metadata   map[string]any `json:"metadata"`
}

// RegisterToken handles POST /tokens. Re-registering a known token updates
// it in place and keeps its id.
func (a *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "FCM token is required")
		return
	}
	if len(token) < minTokenLen || len(token) > maxTokenLen {
		writeError(w, http.StatusBadRequest, "invalid FCM token format")
		return
	}

	rec, err := a.store.Upsert(r.Context(), token, req.DeviceInfo, req.Metadata)
	if err != nil {
		a.logger.Error("failed to register token", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}
	a.logger.Info("token registered", "id", rec.ID, "token", rec.TruncatedToken())

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "token registered",
		"token":   summarize(rec),
	})
}

// DeleteToken handles DELETE /tokens/{id}.
func (a *TokenAPI) DeleteToken(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.store.DeleteByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.logger.Error("failed to delete token", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete token")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "token deleted",
	})
}
