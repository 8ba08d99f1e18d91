package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"rfc-tracker/pkg/rfc"
)

// Key prefixes.
const (
	RecordPrefix   = "rfc/"
	RevisionPrefix = "rev/"
	RunPrefix      = "run/"
)

// RecordKey returns the key RFC records for identifier are appended under.
func RecordKey(identifier string) string {
	return RecordPrefix + identifier
}

// RevisionKey returns the key marking a revision as processed.
func RevisionKey(revisionID int64) string {
	return RevisionPrefix + strconv.FormatInt(revisionID, 10)
}

// RunKey returns the key history scan snapshots are appended under.
func RunKey(runID string) string {
	return RunPrefix + runID
}

// RevisionMark records which run processed a revision.
type RevisionMark struct {
	ProcessedAt time.Time `json:"processed_at"`
	RunID       string    `json:"run_id"`
	Records     int       `json:"records"`
}

// AppendRecord stores one removed RFC.
func (s *Store) AppendRecord(ctx context.Context, r *rfc.Record) error {
	return s.Append(ctx, RecordKey(r.Identifier), r)
}

// Records returns every record stored for identifier, in append order.
func (s *Store) Records(ctx context.Context, identifier string) ([]*rfc.Record, error) {
	key := RecordKey(identifier)
	var out []*rfc.Record
	err := s.Iterate(ctx, key, func(k string, value []byte) error {
		if k != key {
			return nil
		}
		var r rfc.Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode record %s: %w", k, err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// AllRecords returns every stored record.
func (s *Store) AllRecords(ctx context.Context) ([]*rfc.Record, error) {
	var out []*rfc.Record
	err := s.Iterate(ctx, RecordPrefix, func(k string, value []byte) error {
		var r rfc.Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode record %s: %w", k, err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// MarkRevision records that a revision has been fully processed.
func (s *Store) MarkRevision(ctx context.Context, revisionID int64, mark RevisionMark) error {
	return s.Append(ctx, RevisionKey(revisionID), mark)
}

// RevisionSeen reports whether a revision was processed by an earlier run.
func (s *Store) RevisionSeen(ctx context.Context, revisionID int64) (bool, error) {
	return s.Exists(ctx, RevisionKey(revisionID))
}

// SaveRun appends a snapshot of a history scan.
func (s *Store) SaveRun(ctx context.Context, run *rfc.Run) error {
	return s.Append(ctx, RunKey(run.ID), run)
}

// Runs returns the latest snapshot of every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]*rfc.Run, error) {
	latest := make(map[string]*rfc.Run)
	err := s.Iterate(ctx, RunPrefix, func(k string, value []byte) error {
		var r rfc.Run
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("decode run %s: %w", k, err)
		}
		latest[k] = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	runs := make([]*rfc.Run, 0, len(latest))
	for _, r := range latest {
		runs = append(runs, r)
	}
	slices.SortFunc(runs, func(a, b *rfc.Run) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return runs, nil
}
