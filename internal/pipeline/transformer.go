// Package pipeline adapts the dispatcher to Pub/Sub ingestion: JSON send
// requests consumed from a subscription flow through the same validation and
// shaping as HTTP sends.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// SendRequestTransformer is a dataflow Transformer that unmarshals a raw
// message payload into a structured push.SendRequest.
func SendRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.SendRequest, bool, error) {
	var req push.SendRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		// Malformed payloads can never succeed; skip=true lets the
		// StreamingService handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to unmarshal send request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
