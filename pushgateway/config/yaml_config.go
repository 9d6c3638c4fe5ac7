package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlFirebaseConfig struct {
	ProjectID          string `yaml:"project_id"`
	ServiceAccountPath string `yaml:"service_account_path"`
}

type YamlStorageConfig struct {
	Driver   string `yaml:"driver"`
	FilePath string `yaml:"file_path"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlAPNSConfig struct {
	KeyID     string `yaml:"key_id"`
	TeamID    string `yaml:"team_id"`
	BundleID  string `yaml:"bundle_id"`
	P8KeyPath string `yaml:"p8_key_path"`
}

type YamlNotificationDefaults struct {
	ChannelID string `yaml:"channel_id"`
	Sound     string `yaml:"sound"`
	Priority  string `yaml:"priority"`
}

// YamlConfig is the structure that mirrors the raw local.yaml file.
type YamlConfig struct {
	ListenAddr             string                   `yaml:"listen_addr"`
	LogLevel               string                   `yaml:"log_level"`
	Firebase               YamlFirebaseConfig       `yaml:"firebase"`
	CorsConfig             YamlCorsConfig           `yaml:"cors"`
	Storage                YamlStorageConfig        `yaml:"storage"`
	RedisConfig            YamlRedisConfig          `yaml:"redis"`
	VapidConfig            YamlVapidConfig          `yaml:"vapid"`
	APNSConfig             YamlAPNSConfig           `yaml:"apns"`
	Notifications          YamlNotificationDefaults `yaml:"notifications"`
	SendTimeoutSeconds     int                      `yaml:"send_timeout_seconds"`
	TopicID                string                   `yaml:"topic_id"`
	SubscriptionID         string                   `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                   `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                      `yaml:"num_pipeline_workers"`
	DefaultTokens          []string                 `yaml:"default_tokens"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// Mapping is purely structural; validation happens once env overrides are in.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) *Config {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ListenAddr: baseCfg.ListenAddr,
		LogLevel:   baseCfg.LogLevel,
		Firebase: FirebaseConfig{
			ProjectID:          baseCfg.Firebase.ProjectID,
			ServiceAccountPath: baseCfg.Firebase.ServiceAccountPath,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Storage: StorageConfig{
			Driver:   baseCfg.Storage.Driver,
			FilePath: baseCfg.Storage.FilePath,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		APNS: APNSConfig{
			KeyID:     baseCfg.APNSConfig.KeyID,
			TeamID:    baseCfg.APNSConfig.TeamID,
			BundleID:  baseCfg.APNSConfig.BundleID,
			P8KeyPath: baseCfg.APNSConfig.P8KeyPath,
		},
		Defaults: NotificationDefaults{
			ChannelID: baseCfg.Notifications.ChannelID,
			Sound:     baseCfg.Notifications.Sound,
			Priority:  baseCfg.Notifications.Priority,
		},
		SendTimeout:            time.Duration(baseCfg.SendTimeoutSeconds) * time.Second,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		DefaultTokens:          baseCfg.DefaultTokens,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.Firebase.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"storage_driver", cfg.Storage.Driver,
	)

	return cfg
}
