// Package firestore implements the token registry on Google Cloud Firestore,
// for deployments where a flat file on local disk is not durable enough.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const tokensCollection = "tokens"

// TokenStore implements push.TokenStore using Firestore. Documents are keyed
// by a hash of the token string so re-registration is a natural upsert.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

// tokenDoc is the Firestore representation of a record.
type tokenDoc struct {
	ID         string         `firestore:"id"`
	Token      string         `firestore:"token"`
	DeviceInfo map[string]any `firestore:"device_info,omitempty"`
	CreatedAt  time.Time      `firestore:"created_at"`
	LastUsed   time.Time      `firestore:"last_used"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
}

func (d *tokenDoc) toRecord() *push.TokenRecord {
	return &push.TokenRecord{
		ID:         d.ID,
		Token:      d.Token,
		DeviceInfo: d.DeviceInfo,
		CreatedAt:  d.CreatedAt,
		LastUsed:   d.LastUsed,
		Metadata:   d.Metadata,
	}
}

func (s *TokenStore) Upsert(ctx context.Context, token string, deviceInfo, metadata map[string]any) (*push.TokenRecord, error) {
	ref := s.tokenRef(token)
	now := time.Now().UTC()

	doc := tokenDoc{
		ID:         uuid.NewString(),
		Token:      token,
		DeviceInfo: deviceInfo,
		Metadata:   metadata,
		CreatedAt:  now,
		LastUsed:   now,
	}

	// Keep id and createdAt stable across re-registrations.
	snap, err := ref.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, fmt.Errorf("firestore lookup failed: %w", err)
	}
	if snap != nil && snap.Exists() {
		var existing tokenDoc
		if err := snap.DataTo(&existing); err == nil {
			doc.ID = existing.ID
			doc.CreatedAt = existing.CreatedAt
		}
	}

	if _, err := ref.Set(ctx, doc); err != nil {
		return nil, fmt.Errorf("firestore upsert failed: %w", err)
	}
	return doc.toRecord(), nil
}

func (s *TokenStore) List(ctx context.Context) ([]*push.TokenRecord, error) {
	iter := s.collection().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var records []*push.TokenRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var doc tokenDoc
		if err := snap.DataTo(&doc); err != nil {
			// Safe to skip corrupt rows; they cannot be dispatched to anyway.
			continue
		}
		records = append(records, doc.toRecord())
	}
	return records, nil
}

func (s *TokenStore) GetByID(ctx context.Context, id string) (*push.TokenRecord, error) {
	iter := s.collection().Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore query failed: %w", err)
	}
	var doc tokenDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore decode failed: %w", err)
	}
	return doc.toRecord(), nil
}

func (s *TokenStore) GetByToken(ctx context.Context, token string) (*push.TokenRecord, error) {
	snap, err := s.tokenRef(token).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore lookup failed: %w", err)
	}
	var doc tokenDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore decode failed: %w", err)
	}
	return doc.toRecord(), nil
}

func (s *TokenStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if _, err := s.tokenRef(rec.Token).Delete(ctx); err != nil {
		return false, fmt.Errorf("firestore delete failed: %w", err)
	}
	return true, nil
}

func (s *TokenStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	rec, err := s.GetByToken(ctx, token)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if _, err := s.tokenRef(token).Delete(ctx); err != nil {
		return false, fmt.Errorf("firestore delete failed: %w", err)
	}
	return true, nil
}

func (s *TokenStore) TouchByToken(ctx context.Context, token string) error {
	_, err := s.tokenRef(token).Update(ctx, []firestore.Update{
		{Path: "last_used", Value: time.Now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		// Anonymous sends are allowed; nothing to refresh.
		return nil
	}
	return err
}

func (s *TokenStore) Count(ctx context.Context) (int, error) {
	iter := s.collection().Select().Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("firestore iteration failed: %w", err)
		}
		count++
	}
	return count, nil
}

func (s *TokenStore) collection() *firestore.CollectionRef {
	return s.client.Collection(tokensCollection)
}

// tokenRef addresses the document holding one token's registration.
func (s *TokenStore) tokenRef(token string) *firestore.DocumentRef {
	return s.collection().Doc(hashToken(token))
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
