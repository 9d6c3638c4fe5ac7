package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/apns"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/web"
	"github.com/tinywideclouds/go-push-gateway/internal/storage/cache"
	fileStore "github.com/tinywideclouds/go-push-gateway/internal/storage/file"
	fsStore "github.com/tinywideclouds/go-push-gateway/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
	"github.com/tinywideclouds/go-push-gateway/pushgateway"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"

	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-gateway")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Firebase ---
	fbOptions := credentialOptions(cfg, logger)
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, fbOptions...)
	if err != nil {
		logger.Error("Failed to initialize Firebase App", "err", err)
		os.Exit(1)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		logger.Error("Failed to create FCM messaging client", "err", err)
		os.Exit(1)
	}
	fcmSender := fcm.NewSender(fcmMessaging, logger)

	// --- Token Store (Decorated) ---
	var tokenStore push.TokenStore
	switch cfg.Storage.Driver {
	case config.StorageDriverFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.Firebase.ProjectID, fbOptions...)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = fsClient.Close() }()
		tokenStore = fsStore.NewTokenStore(fsClient)
		logger.Info("TokenStore initialized", "type", "firestore")
	default:
		tokenStore = fileStore.NewTokenStore(cfg.Storage.FilePath, logger)
		logger.Info("TokenStore initialized", "type", "file", "path", cfg.Storage.FilePath)
	}

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()
		tokenStore = cache.NewCachedTokenStore(tokenStore, redisClient, 24*time.Hour)
		logger.Info("TokenStore upgraded", "type", "redis_cached")
	}

	// --- Optional broadcast legs ---
	opts := dispatch.Options{
		Defaults: dispatch.Defaults{
			Sound:     cfg.Defaults.Sound,
			Priority:  cfg.Defaults.Priority,
			ChannelID: cfg.Defaults.ChannelID,
		},
		Timeout: cfg.SendTimeout,
	}
	if cfg.APNS.Enabled() {
		p8Key, err := os.ReadFile(cfg.APNS.P8KeyPath)
		if err != nil {
			logger.Error("Failed to read APNs P8 key", "path", cfg.APNS.P8KeyPath, "err", err)
			os.Exit(1)
		}
		apnsSender, err := apns.NewSender(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(p8Key),
		}, logger)
		if err != nil {
			logger.Error("Failed to create APNs sender", "err", err)
			os.Exit(1)
		}
		opts.APNS = apnsSender
		logger.Info("APNs broadcast leg enabled", "bundle_id", cfg.APNS.BundleID)
	}
	if cfg.Vapid.Enabled() {
		opts.Web = web.NewSender(web.Config{
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
		}, logger)
		logger.Info("Web push broadcast leg enabled")
	} else {
		logger.Warn("VAPID keys missing in configuration. Web push broadcasts will be skipped.")
	}

	dispatcher := dispatch.New(tokenStore, fcmSender, opts, logger)

	// --- Default tokens ---
	loadDefaultTokens(ctx, tokenStore, cfg.DefaultTokens, logger)

	// --- Optional ingestion consumer ---
	var consumer messagepipeline.MessageConsumer
	if cfg.SubscriptionID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.Firebase.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer func() { _ = psClient.Close() }()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Ingestion consumer failed", "err", err)
			os.Exit(1)
		}
	}

	// --- Service ---
	service, err := pushgateway.New(cfg, dispatcher, tokenStore, consumer, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...", "addr", cfg.ListenAddr)
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// credentialOptions resolves Firebase credentials: an inline service account
// document wins over a file path; with neither, application default
// credentials apply.
func credentialOptions(cfg *config.Config, logger *slog.Logger) []option.ClientOption {
	if cfg.Firebase.ServiceAccountJSON != "" {
		logger.Info("Using service account from environment")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.Firebase.ServiceAccountJSON))}
	}
	if cfg.Firebase.ServiceAccountPath != "" {
		logger.Info("Using service account file", "path", cfg.Firebase.ServiceAccountPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.Firebase.ServiceAccountPath)}
	}
	logger.Info("Using application default credentials")
	return nil
}

// loadDefaultTokens registers the configured bootstrap tokens if they are
// not already known. Failures are non-fatal.
func loadDefaultTokens(ctx context.Context, store push.TokenStore, tokens []string, logger *slog.Logger) {
	for _, token := range tokens {
		existing, err := store.GetByToken(ctx, token)
		if err != nil {
			logger.Warn("Default token lookup failed", "err", err)
			continue
		}
		if existing != nil {
			continue
		}
		rec, err := store.Upsert(ctx, token, nil, map[string]any{"source": "hardcoded"})
		if err != nil {
			logger.Warn("Default token load failed", "err", err)
			continue
		}
		logger.Info("Default token loaded", "id", rec.ID, "token", rec.TruncatedToken())
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.Firebase.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.Firebase.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.Firebase.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
