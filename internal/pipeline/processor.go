package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Sender is the dispatcher surface the processor needs.
type Sender interface {
	Send(ctx context.Context, req *push.SendRequest) (string, error)
}

// NewProcessor creates the stage that hands transformed requests to the
// dispatcher. Failures the sender can never recover from (bad request, dead
// token) are terminal and acked; transient provider failures return an error
// so the message is redelivered.
func NewProcessor(
	sender Sender,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[push.SendRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *push.SendRequest) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)

		messageID, err := sender.Send(ctx, request)
		if err != nil {
			if errors.Is(err, dispatch.ErrInvalidRequest) {
				procLogger.Warn("Dropping invalid send request", "err", err)
				return nil
			}

			var sendErr *push.SendError
			if errors.As(err, &sendErr) && sendErr.IsClientFault() {
				// Redelivery cannot fix a dead or malformed token.
				procLogger.Warn("Dropping undeliverable send request", "code", sendErr.Code(), "err", err)
				return nil
			}

			procLogger.Error("Send failed", "err", err)
			return err // Retryable
		}

		procLogger.Info("Notification dispatched", "messageId", messageID)
		return nil
	}
}
