// Package dispatch turns validated send requests into provider messages and
// routes them through the configured transports. All request validation and
// platform-default shaping happens here, so the HTTP layer and the pipeline
// share one set of rules.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const (
	maxTitleLen = 100
	maxBodyLen  = 500

	defaultSendTimeout = 20 * time.Second
)

// ErrInvalidRequest marks request validation failures. Wrapped errors carry
// the caller-facing detail.
var ErrInvalidRequest = errors.New("invalid request")

// ErrTokenNotFound is returned when a stored-token send names an unknown id.
var ErrTokenNotFound = errors.New("token not found")

// FCMSender is the full FCM transport the dispatcher needs.
type FCMSender interface {
	push.Sender
	push.MulticastSender
}

// PlatformBroadcaster delivers a broadcast leg addressed by raw device tokens.
type PlatformBroadcaster interface {
	Broadcast(ctx context.Context, tokens []string, title, body string, data map[string]string) (*push.MulticastReceipt, error)
}

// WebBroadcaster delivers the web-push broadcast leg. It needs the full
// records because the encryption keys live in device info.
type WebBroadcaster interface {
	Broadcast(ctx context.Context, records []*push.TokenRecord, title, body string, data map[string]string) (*push.MulticastReceipt, error)
}

// Defaults are the notification values applied when the caller's platform
// blocks leave them unset.
type Defaults struct {
	Sound     string
	Priority  string
	ChannelID string
}

func (d Defaults) withFallbacks() Defaults {
	if d.Sound == "" {
		d.Sound = "default"
	}
	if d.Priority == "" {
		d.Priority = "high"
	}
	if d.ChannelID == "" {
		d.ChannelID = "default"
	}
	return d
}

// Options carries the optional collaborators and tuning knobs.
type Options struct {
	// APNS and Web enable the direct broadcast legs; nil routes everything
	// through FCM (web registrations are skipped, their endpoints are not
	// FCM tokens).
	APNS PlatformBroadcaster
	Web  WebBroadcaster

	Defaults Defaults
	Timeout  time.Duration
}

type Dispatcher struct {
	store    push.TokenStore
	fcm      FCMSender
	apns     PlatformBroadcaster
	web      WebBroadcaster
	defaults Defaults
	timeout  time.Duration
	logger   *slog.Logger
}

func New(store push.TokenStore, fcm FCMSender, opts Options, logger *slog.Logger) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		store:    store,
		fcm:      fcm,
		apns:     opts.APNS,
		web:      opts.Web,
		defaults: opts.Defaults.withFallbacks(),
		timeout:  timeout,
		logger:   logger.With("component", "Dispatcher"),
	}
}

// Send validates the request, shapes the provider message and sends it.
// Returns the provider message id; failures are ErrInvalidRequest,
// ErrTokenNotFound or a *push.SendError.
func (d *Dispatcher) Send(ctx context.Context, req *push.SendRequest) (string, error) {
	if !req.HasTarget() {
		return "", fmt.Errorf("%w: token, topic or condition is required", ErrInvalidRequest)
	}
	return d.send(ctx, req)
}

// SendToStored resolves a registered token by id and sends to it.
func (d *Dispatcher) SendToStored(ctx context.Context, tokenID string, req *push.SendRequest) (string, error) {
	rec, err := d.store.GetByID(ctx, tokenID)
	if err != nil {
		return "", fmt.Errorf("looking up token %s: %w", tokenID, err)
	}
	if rec == nil {
		return "", ErrTokenNotFound
	}

	addressed := *req
	addressed.Token = rec.Token
	addressed.Topic = ""
	addressed.Condition = ""
	return d.send(ctx, &addressed)
}

func (d *Dispatcher) send(ctx context.Context, req *push.SendRequest) (string, error) {
	msg, err := d.buildMessage(req)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messageID, err := d.fcm.Send(sendCtx, msg)
	if err != nil {
		return "", err
	}

	if req.Token != "" {
		// Best effort; an unregistered token stays a silent no-op.
		if touchErr := d.store.TouchByToken(ctx, req.Token); touchErr != nil {
			d.logger.Warn("failed to touch token after send", "err", touchErr)
		}
	}

	d.logger.Info("notification sent", "messageId", messageID)
	return messageID, nil
}

// buildMessage assembles the full provider message: validated content,
// stringified data and the platform blocks with defaults merged in.
func (d *Dispatcher) buildMessage(req *push.SendRequest) (*messaging.Message, error) {
	title, body, err := validateContent(req.Title, req.Body)
	if err != nil {
		return nil, err
	}

	data, err := coerceData(req.Data)
	if err != nil {
		return nil, err
	}

	android, err := d.androidConfig(req.Android)
	if err != nil {
		return nil, err
	}

	msg := &messaging.Message{
		Token:        req.Token,
		Topic:        req.Topic,
		Condition:    req.Condition,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android:      android,
		APNS:         d.apnsConfig(req.APNS),
	}
	if req.Token != "" {
		// Token wins over topic and condition when several are present.
		msg.Topic = ""
		msg.Condition = ""
	} else if req.Topic != "" {
		msg.Condition = ""
	}

	if o := req.Webpush; o != nil {
		msg.Webpush = webpushConfig(o)
	}
	if o := req.FCMOptions; o != nil {
		msg.FCMOptions = &messaging.FCMOptions{AnalyticsLabel: o.AnalyticsLabel}
	}
	return msg, nil
}

func validateContent(title, body string) (string, string, error) {
	if title == "" || body == "" {
		return "", "", fmt.Errorf("%w: title and body are required", ErrInvalidRequest)
	}
	return truncate(title, maxTitleLen), truncate(body, maxBodyLen), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// coerceData forces every data value to a string. Structured values are JSON
// serialized; primitives keep their literal form.
func coerceData(in map[string]any) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: data value %q is not serializable", ErrInvalidRequest, k)
		}
		out[k] = string(b)
	}
	return out, nil
}

// androidConfig merges the caller's android block over the configured
// defaults. Overrides win at the leaf; both layers coexist at the object
// level.
func (d *Dispatcher) androidConfig(o *push.AndroidOverride) (*messaging.AndroidConfig, error) {
	cfg := &messaging.AndroidConfig{
		Priority: d.defaults.Priority,
		Notification: &messaging.AndroidNotification{
			Sound:     d.defaults.Sound,
			ChannelID: d.defaults.ChannelID,
		},
	}
	if o == nil {
		return cfg, nil
	}

	if o.Priority != "" {
		cfg.Priority = o.Priority
	}
	if o.TTL != "" {
		ttl, err := time.ParseDuration(o.TTL)
		if err != nil {
			return nil, fmt.Errorf("%w: android.ttl %q is not a duration", ErrInvalidRequest, o.TTL)
		}
		cfg.TTL = &ttl
	}
	cfg.RestrictedPackageName = o.RestrictedPackageName

	if n := o.Notification; n != nil {
		if n.Sound != "" {
			cfg.Notification.Sound = n.Sound
		}
		if n.ChannelID != "" {
			cfg.Notification.ChannelID = n.ChannelID
		}
		cfg.Notification.Icon = n.Icon
		cfg.Notification.Color = n.Color
		cfg.Notification.Tag = n.Tag
		cfg.Notification.ClickAction = n.ClickAction
	}
	return cfg, nil
}

// apnsConfig merges the caller's apns block over the defaults (default sound,
// badge 1).
func (d *Dispatcher) apnsConfig(o *push.APNSOverride) *messaging.APNSConfig {
	badge := 1
	aps := &messaging.Aps{
		Sound: d.defaults.Sound,
		Badge: &badge,
	}
	cfg := &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{Aps: aps},
	}
	if o == nil {
		return cfg
	}

	cfg.Headers = o.Headers
	if p := o.Payload; p != nil {
		if a := p.APS; a != nil {
			if a.Sound != "" {
				aps.Sound = a.Sound
			}
			if a.Badge != nil {
				aps.Badge = a.Badge
			}
			aps.Category = a.Category
			aps.ThreadID = a.ThreadID
			aps.ContentAvailable = a.ContentAvailable
			aps.MutableContent = a.MutableContent
		}
		if len(p.Custom) > 0 {
			cfg.Payload.CustomData = p.Custom
		}
	}
	if fo := o.FCMOptions; fo != nil {
		cfg.FCMOptions = &messaging.APNSFCMOptions{
			AnalyticsLabel: fo.AnalyticsLabel,
			ImageURL:       fo.ImageURL,
		}
	}
	return cfg
}

func webpushConfig(o *push.WebpushOverride) *messaging.WebpushConfig {
	cfg := &messaging.WebpushConfig{
		Headers: o.Headers,
		Data:    o.Data,
	}
	if n := o.Notification; n != nil {
		cfg.Notification = &messaging.WebpushNotification{
			Title: n.Title,
			Body:  n.Body,
			Icon:  n.Icon,
		}
	}
	if fo := o.FCMOptions; fo != nil {
		cfg.FCMOptions = &messaging.WebpushFCMOptions{Link: fo.Link}
	}
	return cfg
}
