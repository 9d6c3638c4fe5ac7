package api

import (
	"log/slog"
	"net/http"
	"time"
)

const serviceVersion = "1.0.0"

// MetaAPI serves the informational endpoints: health, service index and the
// non-secret configuration summary.
type MetaAPI struct {
	configSummary func() map[string]any
	logger        *slog.Logger
}

func NewMetaAPI(configSummary func() map[string]any, logger *slog.Logger) *MetaAPI {
	return &MetaAPI{
		configSummary: configSummary,
		logger:        logger,
	}
}

func (a *MetaAPI) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "push gateway is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   serviceVersion,
	})
}

func (a *MetaAPI) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Push Gateway",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"health":           "GET /health",
			"config":           "GET /config",
			"tokens":           "GET /tokens",
			"addToken":         "POST /tokens",
			"getToken":         "GET /tokens/{id}",
			"deleteToken":      "DELETE /tokens/{id}",
			"sendToToken":      "POST /tokens/{id}/send",
			"sendNotification": "POST /send-notification",
			"broadcast":        "POST /broadcast",
		},
	})
}

func (a *MetaAPI) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  a.configSummary(),
	})
}

// NotFound answers every unmatched route.
func (a *MetaAPI) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"error":   "endpoint not found",
		"path":    r.URL.Path,
	})
}
