package config_test

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		ListenAddr: ":8080",
		Firebase: config.FirebaseConfig{
			ProjectID: "base-project",
		},
		Vapid: config.VapidConfig{
			PublicKey:  "base-pub",
			PrivateKey: "base-priv",
		},
	}
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("STORAGE_DRIVER", "firestore")
		t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
		t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
		t.Setenv("VAPID_SUB_EMAIL", "env@test.com")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.Firebase.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "firestore", finalCfg.Storage.Driver)
		assert.Equal(t, "env-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, "env-priv", finalCfg.Vapid.PrivateKey)
		assert.Equal(t, "env@test.com", finalCfg.Vapid.SubscriberEmail)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.NotNil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Success - Defaults preserved and filled", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.Firebase.ProjectID)
		assert.Equal(t, "base-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, config.StorageDriverFile, finalCfg.Storage.Driver)
		assert.Equal(t, "./data/tokens.json", finalCfg.Storage.FilePath)
		assert.Equal(t, 20*time.Second, finalCfg.SendTimeout)
		// No subscription means no pipeline wiring at all.
		assert.Nil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Service account env accepts raw JSON", func(t *testing.T) {
		cfg := baseConfig()
		t.Setenv("SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, `{"type":"service_account"}`, finalCfg.Firebase.ServiceAccountJSON)
	})

	t.Run("Service account env accepts base64", func(t *testing.T) {
		cfg := baseConfig()
		raw := `{"type":"service_account"}`
		t.Setenv("SERVICE_ACCOUNT_JSON", base64.StdEncoding.EncodeToString([]byte(raw)))

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, raw, finalCfg.Firebase.ServiceAccountJSON)
	})

	t.Run("Default tokens parsed from csv", func(t *testing.T) {
		cfg := baseConfig()
		t.Setenv("DEFAULT_TOKENS", " tok-a, tok-b ,")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-a", "tok-b"}, finalCfg.DefaultTokens)
	})

	t.Run("Validation Failure - Missing ProjectID", func(t *testing.T) {
		cfg := &config.Config{}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - Unknown storage driver", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Storage.Driver = "dynamo"
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})
}

func TestConfigSummary(t *testing.T) {
	cfg := baseConfig()
	cfg.LogLevel = "debug"
	cfg.Storage.Driver = config.StorageDriverFile
	cfg.Redis.Enabled = true
	cfg.DefaultTokens = []string{"tok-a", "tok-b"}

	summary := cfg.Summary()
	assert.Equal(t, "base-project", summary["projectId"])
	assert.Equal(t, true, summary["redisEnabled"])
	assert.Equal(t, true, summary["webPush"])
	assert.Equal(t, false, summary["apns"])

	server := summary["server"].(map[string]any)
	assert.Equal(t, ":8080", server["listenAddr"])

	logging := summary["logging"].(map[string]any)
	assert.Equal(t, "debug", logging["level"])

	tokens := summary["tokens"].(map[string]any)
	assert.Equal(t, true, tokens["autoLoad"])
	assert.Equal(t, 2, tokens["defaultTokensCount"])

	// Secrets and raw token strings never leak into the summary.
	for k := range summary {
		assert.NotContains(t, k, "Key")
		assert.NotContains(t, k, "password")
	}
	assert.NotContains(t, fmt.Sprintf("%v", summary), "tok-a")
}
