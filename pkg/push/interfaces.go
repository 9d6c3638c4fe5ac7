package push

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

// TokenStore is the contract for the device-token registry.
//
// Lookups return (nil, nil) when no record matches; deletes report whether a
// record was removed. Implementations must serialize mutating operations so
// concurrent registrations cannot clobber each other's persisted state.
type TokenStore interface {
	// Upsert registers a token, updating deviceInfo, metadata and lastUsed in
	// place when the token string is already known. ID and createdAt survive
	// updates.
	Upsert(ctx context.Context, token string, deviceInfo, metadata map[string]any) (*TokenRecord, error)

	// List returns all records in insertion order. The order carries no
	// semantic meaning.
	List(ctx context.Context) ([]*TokenRecord, error)

	GetByID(ctx context.Context, id string) (*TokenRecord, error)
	GetByToken(ctx context.Context, token string) (*TokenRecord, error)

	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)

	// TouchByToken refreshes lastUsed after a successful send. A token that
	// was never registered is a silent no-op: anonymous sends are allowed.
	TouchByToken(ctx context.Context, token string) error

	Count(ctx context.Context) (int, error)
}

// Sender is the narrow boundary to the external messaging provider: one
// message in, a provider-assigned message ID or a *SendError out.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// MulticastSender sends one notification to the batch of tokens named in the
// message, reporting which of them the provider considers dead.
type MulticastSender interface {
	SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*MulticastReceipt, error)
}

// MulticastReceipt summarizes one multicast batch.
type MulticastReceipt struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}
