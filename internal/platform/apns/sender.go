// Package apns provides the client for the Apple Push Notification Service,
// used as the iOS leg of broadcast fan-out.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
}

type Sender struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.tinywide.messenger)
	logger *slog.Logger
}

// NewSender creates a configured APNS sender.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	// apns2.NewTokenClient defaults to the Production endpoint, which is the
	// right default for token-based auth.
	client := apns2.NewTokenClient(tokenSource)

	return &Sender{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSSender"),
	}, nil
}

// Broadcast sends the notification to a batch of APNs device tokens.
// Note: the APNs HTTP/2 API is unary (one request per token). There is no
// multicast endpoint, so we iterate sequentially.
func (s *Sender) Broadcast(ctx context.Context, tokens []string, title, body string, data map[string]string) (*push.MulticastReceipt, error) {
	receipt := &push.MulticastReceipt{}
	if len(tokens) == 0 {
		return receipt, nil
	}

	builder := payload.NewPayload().
		AlertTitle(title).
		AlertBody(body).
		Sound("default")
	for k, v := range data {
		builder.Custom(k, v)
	}

	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return receipt, err
		}

		res, err := s.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       s.topic,
			Payload:     builder,
		})
		if err != nil {
			// Network/Transport failure. The token itself may be fine.
			s.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			receipt.FailureCount++
			continue
		}

		if res.Sent() {
			receipt.SuccessCount++
			continue
		}

		receipt.FailureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			// Token is dead. Add to cleanup list.
			receipt.InvalidTokens = append(receipt.InvalidTokens, deviceToken)
		default:
			// Other rejections (TopicDisallowed, PayloadEmpty) are logged but
			// not treated as invalid tokens, since the token might be fine and
			// our configuration wrong.
			s.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	return receipt, nil
}
