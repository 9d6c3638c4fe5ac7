// Package file implements the token registry as an in-memory collection
// mirrored to a single JSON document on disk. The whole collection is
// rewritten after every mutation; there is no incremental log.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// TokenStore is the default push.TokenStore backend. A single mutex guards
// both the in-memory collection and the synchronous file rewrite, so
// concurrent registrations cannot clobber each other's persisted state.
type TokenStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	records []*push.TokenRecord
}

// NewTokenStore loads the persisted collection from path. A missing file
// starts an empty store; a corrupt file is logged, discarded and replaced on
// the next successful mutation.
func NewTokenStore(path string, logger *slog.Logger) *TokenStore {
	s := &TokenStore{
		path:   path,
		logger: logger.With("component", "FileTokenStore"),
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Error("Failed to create token store directory", "dir", dir, "err", err)
		}
	}
	s.load()
	return s
}

func (s *TokenStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("No token file found, starting with an empty store", "path", s.path)
		} else {
			s.logger.Error("Failed to read token file, starting empty", "path", s.path, "err", err)
		}
		return
	}
	var records []*push.TokenRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("Token file is corrupt, discarding contents", "path", s.path, "err", err)
		return
	}
	s.records = records
	s.logger.Info("Loaded token registry", "count", len(records))
}

// persist rewrites the whole collection. Failures are logged and swallowed:
// the in-memory state stays authoritative for the rest of the process
// lifetime, and the next successful mutation repairs the file.
func (s *TokenStore) persist() {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal token registry", "err", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Error("Failed to persist token registry", "path", s.path, "err", err)
	}
}

func (s *TokenStore) Upsert(_ context.Context, token string, deviceInfo, metadata map[string]any) (*push.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, rec := range s.records {
		if rec.Token == token {
			rec.DeviceInfo = deviceInfo
			rec.Metadata = metadata
			rec.LastUsed = now
			s.persist()
			return cloneRecord(rec), nil
		}
	}

	rec := &push.TokenRecord{
		ID:         uuid.NewString(),
		Token:      token,
		DeviceInfo: deviceInfo,
		Metadata:   metadata,
		CreatedAt:  now,
		LastUsed:   now,
	}
	s.records = append(s.records, rec)
	s.persist()
	return cloneRecord(rec), nil
}

func (s *TokenStore) List(_ context.Context) ([]*push.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*push.TokenRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func (s *TokenStore) GetByID(_ context.Context, id string) (*push.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (s *TokenStore) GetByToken(_ context.Context, token string) (*push.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Token == token {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (s *TokenStore) DeleteByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.persist()
			return true, nil
		}
	}
	return false, nil
}

func (s *TokenStore) DeleteByToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.Token == token {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.persist()
			return true, nil
		}
	}
	return false, nil
}

// TouchByToken refreshes lastUsed after a successful send. Unknown tokens
// are a silent no-op: sends to never-registered tokens are legal.
func (s *TokenStore) TouchByToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Token == token {
			rec.LastUsed = time.Now().UTC()
			s.persist()
			return nil
		}
	}
	return nil
}

func (s *TokenStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// cloneRecord copies a record so callers can never mutate the store's
// collection through a returned pointer.
func cloneRecord(rec *push.TokenRecord) *push.TokenRecord {
	out := *rec
	if rec.DeviceInfo != nil {
		out.DeviceInfo = make(map[string]any, len(rec.DeviceInfo))
		for k, v := range rec.DeviceInfo {
			out.DeviceInfo[k] = v
		}
	}
	if rec.Metadata != nil {
		out.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
