package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	StorageDriverFile      = "file"
	StorageDriverFirestore = "firestore"
)

type FirebaseConfig struct {
	ProjectID          string
	ServiceAccountPath string
	// ServiceAccountJSON is the resolved credential document when supplied
	// through the SERVICE_ACCOUNT_JSON env var (raw or base64).
	ServiceAccountJSON string
}

type StorageConfig struct {
	Driver   string
	FilePath string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

func (c VapidConfig) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

type APNSConfig struct {
	KeyID     string
	TeamID    string
	BundleID  string
	P8KeyPath string
}

func (c APNSConfig) Enabled() bool {
	return c.KeyID != "" && c.TeamID != "" && c.BundleID != "" && c.P8KeyPath != ""
}

type NotificationDefaults struct {
	ChannelID string
	Sound     string
	Priority  string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	Firebase   FirebaseConfig
	CorsConfig middleware.CorsConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	APNS       APNSConfig
	Defaults   NotificationDefaults

	SendTimeout time.Duration

	// Pipeline ingestion is optional; empty SubscriptionID disables it.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig

	// DefaultTokens are upserted at boot when not already registered.
	DefaultTokens []string
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.Firebase.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("SERVICE_ACCOUNT_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "SERVICE_ACCOUNT_PATH", "source", "env")
		cfg.Firebase.ServiceAccountPath = val
	}
	if val := os.Getenv("SERVICE_ACCOUNT_JSON"); val != "" {
		logger.Debug("Overriding config value", "key", "SERVICE_ACCOUNT_JSON", "source", "env")
		cfg.Firebase.ServiceAccountJSON = resolveServiceAccountJSON(val)
	}

	// Storage Overrides
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		cfg.Storage.Driver = val
	}
	if val := os.Getenv("TOKEN_STORE_PATH"); val != "" {
		cfg.Storage.FilePath = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		cfg.Vapid.SubscriberEmail = val
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY_PATH"); val != "" {
		cfg.APNS.P8KeyPath = val
	}

	// Pipeline Overrides
	if val := os.Getenv("TOPIC_ID"); val != "" {
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			cfg.NumPipelineWorkers = workers
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	if val := os.Getenv("DEFAULT_TOKENS"); val != "" {
		var tokens []string
		for _, t := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				tokens = append(tokens, trimmed)
			}
		}
		cfg.DefaultTokens = tokens
	}

	// 2. Final Validation
	if cfg.Firebase.ProjectID == "" {
		return nil, fmt.Errorf("firebase.project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageDriverFile
	}
	if cfg.Storage.Driver != StorageDriverFile && cfg.Storage.Driver != StorageDriverFirestore {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == StorageDriverFile && cfg.Storage.FilePath == "" {
		cfg.Storage.FilePath = "./data/tokens.json"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if cfg.SubscriptionID != "" {
		if cfg.NumPipelineWorkers <= 0 {
			cfg.NumPipelineWorkers = 1
		}
		if cfg.PubsubConsumerConfig == nil {
			cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
		}
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

// resolveServiceAccountJSON accepts the credential document either raw or
// base64 encoded, since some deploy targets cannot hold multi-line secrets.
func resolveServiceAccountJSON(val string) string {
	trimmed := strings.TrimSpace(val)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return strings.TrimSpace(string(decoded))
	}
	return trimmed
}

// Summary is the non-secret view served by GET /config. Default tokens are
// reported as a count only; raw token strings never leave the registry
// endpoints.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listenAddr": c.ListenAddr,
		},
		"logging": map[string]any{
			"level": c.LogLevel,
		},
		"projectId":     c.Firebase.ProjectID,
		"storageDriver": c.Storage.Driver,
		"redisEnabled":  c.Redis.Enabled,
		"webPush":       c.Vapid.Enabled(),
		"apns":          c.APNS.Enabled(),
		"pipeline":      c.SubscriptionID != "",
		"corsOrigins":   c.CorsConfig.AllowedOrigins,
		"notifications": map[string]string{
			"channelId": c.Defaults.ChannelID,
			"sound":     c.Defaults.Sound,
			"priority":  c.Defaults.Priority,
		},
		"tokens": map[string]any{
			"autoLoad":           len(c.DefaultTokens) > 0,
			"defaultTokensCount": len(c.DefaultTokens),
		},
	}
}
