package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// objectName returns a name that sorts after every earlier append to key.
func objectName(key string, now time.Time) string {
	return fmt.Sprintf("%s/%020d-%s.json", key, now.UnixNano(), uuid.NewString()[:8])
}

// keyOf recovers the store key from an object name.
func keyOf(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}

func (s *Store) appendBucket(ctx context.Context, key string, data []byte) error {
	name := objectName(key, time.Now())
	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying append after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("append after retries: %w", err)
	}
	return nil
}

// latestObject returns the newest object name for key.
func (s *Store) latestObject(ctx context.Context, key string) (string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: key + "/"})
	var latest string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list %s: %w", key, err)
		}
		if keyOf(attrs.Name) == key && attrs.Name > latest {
			latest = attrs.Name
		}
	}
	if latest == "" {
		return "", ErrNotFound
	}
	return latest, nil
}

func (s *Store) readObject(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying read after error", "attempt", n, "object", name, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("read after retries: %w", err)
	}
	return data, nil
}

func (s *Store) readBucket(ctx context.Context, key string) ([]byte, error) {
	name, err := s.latestObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.readObject(ctx, name)
}

// iterateBucket visits objects in name order, which groups values by key
// and orders each key's values by append time.
func (s *Store) iterateBucket(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("iterate storage: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			names = append(names, attrs.Name)
		}
	}

	for _, name := range names {
		data, err := s.readObject(ctx, name)
		if err != nil {
			return err
		}
		if err := fn(keyOf(name), data); err != nil {
			return err
		}
	}
	return nil
}
