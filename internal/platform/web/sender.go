// Package web provides the Web Push (VAPID) client, used as the browser leg
// of broadcast fan-out. Web registrations store the subscription endpoint as
// the token and carry the encryption keys in the device info.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Config holds the VAPID key pair and contact address.
type Config struct {
	SubscriberEmail string
	PublicKey       string
	PrivateKey      string
}

type Sender struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewSender(cfg Config, logger *slog.Logger) *Sender {
	return &Sender{
		subscriber: cfg.SubscriberEmail,
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		logger:     logger.With("component", "WebPushSender"),
		httpClient: &http.Client{},
	}
}

// Broadcast sends the notification to every web subscription in the batch.
// Subscriptions the push service reports as gone come back in the receipt's
// invalid list so the caller can remove them.
func (s *Sender) Broadcast(ctx context.Context, records []*push.TokenRecord, title, body string, data map[string]string) (*push.MulticastReceipt, error) {
	receipt := &push.MulticastReceipt{}
	if len(records) == 0 {
		return receipt, nil
	}

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return receipt, err
		}

		sub, ok := subscriptionFor(rec)
		if !ok {
			// A web registration without its encryption keys can never be
			// delivered to. Treat it like a dead token.
			s.logger.Warn("web registration missing p256dh/auth keys", "id", rec.ID)
			receipt.FailureCount++
			receipt.InvalidTokens = append(receipt.InvalidTokens, rec.Token)
			continue
		}

		resp, err := webpush.SendNotification(payloadBytes, sub, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.publicKey,
			VAPIDPrivateKey: s.privateKey,
			TTL:             60,
			HTTPClient:      s.httpClient,
		})
		if err != nil {
			// Transport error (DNS, timeout). Log and skip, don't delete.
			s.logger.Error("WebPush transport error", "endpoint", rec.Token, "err", err)
			receipt.FailureCount++
			continue
		}
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			receipt.SuccessCount++
		case http.StatusGone, http.StatusNotFound:
			// 410 Gone / 404 Not Found means the subscription is dead.
			receipt.FailureCount++
			receipt.InvalidTokens = append(receipt.InvalidTokens, rec.Token)
		default:
			s.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", rec.Token)
			receipt.FailureCount++
		}
	}

	return receipt, nil
}

// subscriptionFor builds the webpush subscription from a stored record. The
// endpoint is the record's token; the keys live in deviceInfo as the browser
// handed them to the registering client.
func subscriptionFor(rec *push.TokenRecord) (*webpush.Subscription, bool) {
	p256dh, ok1 := rec.DeviceInfo["p256dh"].(string)
	auth, ok2 := rec.DeviceInfo["auth"].(string)
	if !ok1 || !ok2 || p256dh == "" || auth == "" {
		return nil, false
	}
	return &webpush.Subscription{
		Endpoint: rec.Token,
		Keys: webpush.Keys{
			P256dh: p256dh,
			Auth:   auth,
		},
	}, true
}
