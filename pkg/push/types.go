// Package push contains the public domain model and contracts for the
// push-gateway service.
package push

import (
	"encoding/json"
	"time"
)

// TokenRecord is one device registration held by the token registry.
type TokenRecord struct {
	ID         string         `json:"id"`
	Token      string         `json:"token"`
	DeviceInfo map[string]any `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastUsed   time.Time      `json:"lastUsed"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TruncatedToken returns the first 20 characters of the token plus an
// ellipsis. List and registration responses never expose full tokens.
func (r *TokenRecord) TruncatedToken() string {
	if len(r.Token) <= 20 {
		return r.Token + "..."
	}
	return r.Token[:20] + "..."
}

// Platform reports the registration platform recorded in deviceInfo,
// or "" when none was supplied.
func (r *TokenRecord) Platform() string {
	if r.DeviceInfo == nil {
		return ""
	}
	p, _ := r.DeviceInfo["platform"].(string)
	return p
}

// SendRequest describes one outbound notification. Exactly one of Token,
// Topic or Condition addresses the message; Token wins over Topic, Topic
// over Condition when several are present.
type SendRequest struct {
	Token     string `json:"token,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Condition string `json:"condition,omitempty"`

	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`

	Android    *AndroidOverride `json:"android,omitempty"`
	APNS       *APNSOverride    `json:"apns,omitempty"`
	Webpush    *WebpushOverride `json:"webpush,omitempty"`
	FCMOptions *FCMOptions      `json:"fcm_options,omitempty"`
}

// HasTarget reports whether any addressing field is set.
func (r *SendRequest) HasTarget() bool {
	return r.Token != "" || r.Topic != "" || r.Condition != ""
}

// AndroidOverride carries the caller-supplied Android block. Fields the
// caller leaves empty fall back to the configured notification defaults.
type AndroidOverride struct {
	Priority              string                       `json:"priority,omitempty"`
	TTL                   string                       `json:"ttl,omitempty"`
	RestrictedPackageName string                       `json:"restricted_package_name,omitempty"`
	Notification          *AndroidNotificationOverride `json:"notification,omitempty"`
}

type AndroidNotificationOverride struct {
	Sound       string `json:"sound,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Tag         string `json:"tag,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

// APNSOverride carries the caller-supplied iOS block.
type APNSOverride struct {
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    *APNSPayload      `json:"payload,omitempty"`
	FCMOptions *APNSFCMOptions   `json:"fcm_options,omitempty"`
}

// APNSPayload is the aps dictionary plus any custom top-level keys the
// caller sends alongside it.
type APNSPayload struct {
	APS    *APSOverride
	Custom map[string]any
}

// UnmarshalJSON splits the payload into the aps dictionary and the
// remaining custom keys, mirroring how APNs treats the two.
func (p *APNSPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if apsRaw, ok := raw["aps"]; ok {
		p.APS = &APSOverride{}
		if err := json.Unmarshal(apsRaw, p.APS); err != nil {
			return err
		}
		delete(raw, "aps")
	}
	if len(raw) > 0 {
		p.Custom = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			p.Custom[k] = val
		}
	}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON; used by tests and logging.
func (p *APNSPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Custom)+1)
	for k, v := range p.Custom {
		out[k] = v
	}
	if p.APS != nil {
		out["aps"] = p.APS
	}
	return json.Marshal(out)
}

type APSOverride struct {
	Sound            string `json:"sound,omitempty"`
	Badge            *int   `json:"badge,omitempty"`
	Category         string `json:"category,omitempty"`
	ThreadID         string `json:"thread-id,omitempty"`
	ContentAvailable bool   `json:"content-available,omitempty"`
	MutableContent   bool   `json:"mutable-content,omitempty"`
}

type APNSFCMOptions struct {
	AnalyticsLabel string `json:"analytics_label,omitempty"`
	ImageURL       string `json:"image,omitempty"`
}

// WebpushOverride carries the caller-supplied web-push block, forwarded to
// the provider as-is.
type WebpushOverride struct {
	Headers      map[string]string            `json:"headers,omitempty"`
	Data         map[string]string            `json:"data,omitempty"`
	Notification *WebpushNotificationOverride `json:"notification,omitempty"`
	FCMOptions   *WebpushFCMOptions           `json:"fcm_options,omitempty"`
}

type WebpushNotificationOverride struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type WebpushFCMOptions struct {
	Link string `json:"link,omitempty"`
}

// FCMOptions is the platform-independent options block.
type FCMOptions struct {
	AnalyticsLabel string `json:"analytics_label,omitempty"`
}
