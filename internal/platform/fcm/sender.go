// Package fcm provides the client for Firebase Cloud Messaging, the
// gateway's primary transport. Raw SDK errors are classified here, once,
// into the closed push.SendError variant.
package fcm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
// Note: *messaging.Client automatically satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Sender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSender(client MessagingClient, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger.With("component", "FCMSender"),
	}
}

// Send forwards one message and returns the provider-assigned message ID.
// Failures come back as *push.SendError.
func (s *Sender) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	messageID, err := s.client.Send(ctx, msg)
	if err != nil {
		sendErr := classify(err)
		s.logger.Error("FCM send failed", "code", sendErr.Code(), "err", err)
		return "", sendErr
	}
	return messageID, nil
}

// SendMulticast forwards one notification to a batch of tokens, reporting
// which tokens the provider says are dead so the caller can clean them up.
func (s *Sender) SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*push.MulticastReceipt, error) {
	br, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		sendErr := classify(err)
		s.logger.Error("FCM multicast failed", "code", sendErr.Code(), "err", err)
		return nil, sendErr
	}

	receipt := &push.MulticastReceipt{
		SuccessCount: br.SuccessCount,
		FailureCount: br.FailureCount,
	}
	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				receipt.InvalidTokens = append(receipt.InvalidTokens, msg.Tokens[idx])
			}
		}
	}
	return receipt, nil
}

// classify maps a raw Firebase SDK error into the closed failure taxonomy.
func classify(err error) *push.SendError {
	switch {
	case messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsUnregistered(err):
		return &push.SendError{Kind: push.FailureTokenNotRegistered, Message: "FCM token is not registered", Err: err}
	case messaging.IsInvalidArgument(err):
		// The SDK folds bad-token errors into InvalidArgument; split them so
		// callers see the more specific category.
		if strings.Contains(strings.ToLower(err.Error()), "registration token") {
			return &push.SendError{Kind: push.FailureInvalidToken, Message: "invalid FCM token", Err: err}
		}
		return &push.SendError{Kind: push.FailureInvalidArgument, Message: "invalid argument: " + err.Error(), Err: err}
	case messaging.IsThirdPartyAuthError(err) || messaging.IsSenderIDMismatch(err):
		return &push.SendError{Kind: push.FailureUnauthenticated, Message: "Firebase authentication failed", Err: err}
	case messaging.IsUnavailable(err) || messaging.IsQuotaExceeded(err):
		return &push.SendError{Kind: push.FailureUnavailable, Message: "FCM is temporarily unavailable", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &push.SendError{Kind: push.FailureUnavailable, Message: "FCM send timed out", Err: err}
	case messaging.IsInternal(err):
		return &push.SendError{Kind: push.FailureInternal, Message: "FCM internal error", Err: err}
	default:
		return &push.SendError{Kind: push.FailureUnknown, Message: err.Error(), Err: err}
	}
}
