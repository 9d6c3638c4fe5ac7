// Package pushgateway assembles the HTTP façade, the dispatcher and the
// optional Pub/Sub ingestion pipeline into one runnable service.
package pushgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.SendRequest]
	logger          *slog.Logger
}

// New assembles the service. A nil consumer disables Pub/Sub ingestion; the
// HTTP surface never depends on it.
func New(
	cfg *config.Config,
	dispatcher *dispatch.Dispatcher,
	tokenStore push.TokenStore,
	consumer messagepipeline.MessageConsumer,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Optional ingestion pipeline
	var streamingService *messagepipeline.StreamingService[push.SendRequest]
	if consumer != nil {
		processor := pipeline.NewProcessor(dispatcher, logger)

		var err error
		streamingService, err = messagepipeline.NewStreamingService[push.SendRequest](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.SendRequestTransformer,
			processor,
			slog.New(slog.DiscardHandler),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. APIs
	metaAPI := api.NewMetaAPI(cfg.Summary, logger)
	tokenAPI := api.NewTokenAPI(tokenStore, logger)
	sendAPI := api.NewSendAPI(dispatcher, logger)

	// Register Routes
	mux := baseServer.Mux()
	cors := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, cors(h))
	}
	preflight := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	handle("GET /health", metaAPI.Health)
	handle("GET /{$}", metaAPI.Root)
	handle("GET /config", metaAPI.Config)

	handle("OPTIONS /tokens", preflight)
	handle("GET /tokens", tokenAPI.ListTokens)
	handle("POST /tokens", tokenAPI.RegisterToken)
	handle("OPTIONS /tokens/{id}", preflight)
	handle("GET /tokens/{id}", tokenAPI.GetToken)
	handle("DELETE /tokens/{id}", tokenAPI.DeleteToken)
	handle("POST /tokens/{id}/send", sendAPI.SendToToken)

	handle("OPTIONS /send-notification", preflight)
	handle("POST /send-notification", sendAPI.SendNotification)
	handle("OPTIONS /broadcast", preflight)
	handle("POST /broadcast", sendAPI.Broadcast)

	// Everything unmatched gets the JSON 404 body.
	handle("/", metaAPI.NotFound)

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Ingestion pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ingestion pipeline: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Ingestion pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
