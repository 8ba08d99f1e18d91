// Package storage is the append-only record store.
//
// Values are appended under string keys and never rewritten. Reading a key
// returns the latest value appended to it. The store is backed by an
// embedded SQLite database for local runs or by a Cloud Storage bucket.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// IsNotFound checks if an error indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store appends and reads JSON values by key.
// It assumes a single writer process.
type Store struct {
	db     *sql.DB
	client *storage.Client
	logger *slog.Logger
	path   string
	bucket string
}

// New creates a store backed by a Cloud Storage bucket.
func New(client *storage.Client, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Append durably adds value under key. The value is encoded as JSON.
func (s *Store) Append(ctx context.Context, key string, value any) error {
	if key == "" {
		return errors.New("empty key")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if s.db != nil {
		err = s.appendLocal(ctx, key, data)
	} else {
		err = s.appendBucket(ctx, key, data)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("Value appended", "key", key, "bytes", len(data))
	return nil
}

// Read decodes the latest value of key into dst.
// It returns ErrNotFound when the key has no values.
func (s *Store) Read(ctx context.Context, key string, dst any) error {
	var (
		data []byte
		err  error
	)
	if s.db != nil {
		data, err = s.readLocal(ctx, key)
	} else {
		data, err = s.readBucket(ctx, key)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Exists reports whether any value was appended under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var raw json.RawMessage
	err := s.Read(ctx, key, &raw)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Iterate calls fn for every value whose key starts with prefix.
// Values of one key are visited in append order. Iteration stops at the
// first error returned by fn.
func (s *Store) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	if s.db != nil {
		return s.iterateLocal(ctx, prefix, fn)
	}
	return s.iterateBucket(ctx, prefix, fn)
}

// Close releases the store's resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
