package dispatch

import (
	"context"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// FCM limits multicast sends to 500 tokens per request.
const multicastBatchSize = 500

// PlatformResult is one leg's delivery counts.
type PlatformResult struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Invalid int `json:"invalid"`
}

func (r *PlatformResult) add(receipt *push.MulticastReceipt) {
	r.Success += receipt.SuccessCount
	r.Failure += receipt.FailureCount
	r.Invalid += len(receipt.InvalidTokens)
}

// BroadcastResult reports a fan-out to every registered device.
type BroadcastResult struct {
	TotalDevices  int            `json:"totalDevices"`
	FCM           PlatformResult `json:"fcm"`
	APNS          PlatformResult `json:"apns"`
	Web           PlatformResult `json:"web"`
	RemovedTokens int            `json:"removedTokens"`
}

// Broadcast sends one notification to every registered device. Registrations
// are routed by their recorded platform: web goes over direct VAPID push,
// ios over direct APNs when configured, everything else over FCM multicast.
// Tokens the providers report dead are removed from the store.
func (d *Dispatcher) Broadcast(ctx context.Context, title, body string, rawData map[string]any) (*BroadcastResult, error) {
	title, body, err := validateContent(title, body)
	if err != nil {
		return nil, err
	}
	data, err := coerceData(rawData)
	if err != nil {
		return nil, err
	}

	records, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{TotalDevices: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	var fcmTokens []string
	var apnsTokens []string
	var webRecords []*push.TokenRecord
	for _, rec := range records {
		switch rec.Platform() {
		case "web":
			webRecords = append(webRecords, rec)
		case "ios":
			if d.apns != nil {
				apnsTokens = append(apnsTokens, rec.Token)
			} else {
				fcmTokens = append(fcmTokens, rec.Token)
			}
		default:
			fcmTokens = append(fcmTokens, rec.Token)
		}
	}

	var dead []string

	if len(webRecords) > 0 {
		if d.web == nil {
			// Subscription endpoints are not FCM tokens; without VAPID keys
			// these registrations cannot be delivered to.
			d.logger.Warn("web push not configured, skipping web registrations", "count", len(webRecords))
			result.Web.Failure += len(webRecords)
		} else {
			receipt, err := d.web.Broadcast(ctx, webRecords, title, body, data)
			if err != nil {
				return nil, err
			}
			result.Web.add(receipt)
			dead = append(dead, receipt.InvalidTokens...)
		}
	}

	if len(apnsTokens) > 0 {
		receipt, err := d.apns.Broadcast(ctx, apnsTokens, title, body, data)
		if err != nil {
			return nil, err
		}
		result.APNS.add(receipt)
		dead = append(dead, receipt.InvalidTokens...)
	}

	for start := 0; start < len(fcmTokens); start += multicastBatchSize {
		end := min(start+multicastBatchSize, len(fcmTokens))
		receipt, err := d.sendMulticastBatch(ctx, fcmTokens[start:end], title, body, data)
		if err != nil {
			return nil, err
		}
		result.FCM.add(receipt)
		dead = append(dead, receipt.InvalidTokens...)
	}

	result.RemovedTokens = d.removeDeadTokens(ctx, dead)
	d.logger.Info("broadcast complete",
		"devices", result.TotalDevices,
		"fcmSuccess", result.FCM.Success,
		"apnsSuccess", result.APNS.Success,
		"webSuccess", result.Web.Success,
		"removed", result.RemovedTokens)
	return result, nil
}

func (d *Dispatcher) sendMulticastBatch(ctx context.Context, tokens []string, title, body string, data map[string]string) (*push.MulticastReceipt, error) {
	android, _ := d.androidConfig(nil)
	msg := &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android:      android,
		APNS:         d.apnsConfig(nil),
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.fcm.SendMulticast(sendCtx, msg)
}

// removeDeadTokens drops registrations the providers reported as gone.
// Failures here only cost a retry on the next broadcast.
func (d *Dispatcher) removeDeadTokens(ctx context.Context, tokens []string) int {
	removed := 0
	for _, token := range tokens {
		deleted, err := d.store.DeleteByToken(ctx, token)
		if err != nil {
			d.logger.Warn("failed to remove dead token", "err", err)
			continue
		}
		if deleted {
			removed++
		}
	}
	return removed
}
