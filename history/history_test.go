package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"rfc-tracker/mediawiki"
	"rfc-tracker/pkg/rfc"
	"rfc-tracker/storage"
	"rfc-tracker/words"
)

const sampleDiff = `<tr>
  <td class="diff-marker" data-marker="−"></td>
  <td class="diff-deletedline diff-side-deleted"><div>'''[[Talk:X#rfc_ABC123|Talk:X]]''' {{rfcquote|text=Should we...}} ...05:33, 24 December 2020 (UTC)}}</div></td>
  <td colspan="2" class="diff-empty diff-side-added"></td>
</tr>`

type fakeWiki struct {
	revisions []rfc.Revision
	diffs     map[int64]string
	listErr   error
	start     time.Time
	end       time.Time
	user      string
	compared  []int64
}

func (w *fakeWiki) Revisions(_ context.Context, _, user string, start, end time.Time) ([]rfc.Revision, error) {
	w.user, w.start, w.end = user, start, end
	return w.revisions, w.listErr
}

func (w *fakeWiki) Compare(_ context.Context, from, to int64) (string, error) {
	w.compared = append(w.compared, to)
	markup, ok := w.diffs[to]
	if !ok {
		return "", &mediawiki.DiffUnavailableError{From: from, To: to, Reason: "nosuchrevid"}
	}
	return markup, nil
}

type fakeStore struct {
	records   []*rfc.Record
	marks     map[int64]storage.RevisionMark
	runs      []rfc.Run
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{marks: make(map[int64]storage.RevisionMark)}
}

func (s *fakeStore) AppendRecord(_ context.Context, r *rfc.Record) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, r)
	return nil
}

func (s *fakeStore) MarkRevision(_ context.Context, id int64, mark storage.RevisionMark) error {
	s.marks[id] = mark
	return nil
}

func (s *fakeStore) RevisionSeen(_ context.Context, id int64) (bool, error) {
	_, ok := s.marks[id]
	return ok, nil
}

func (s *fakeStore) SaveRun(_ context.Context, run *rfc.Run) error {
	s.runs = append(s.runs, *run)
	return nil
}

func (s *fakeStore) lastRun(t *testing.T) rfc.Run {
	t.Helper()
	if len(s.runs) == 0 {
		t.Fatal("no run snapshot saved")
	}
	return s.runs[len(s.runs)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadDiff(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("../diff/testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func revision(id int64, comment string, at time.Time) rfc.Revision {
	return rfc.Revision{ID: id, ParentID: id - 1, User: "Legobot", Comment: comment, Timestamp: at}
}

func TestScan(t *testing.T) {
	at := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	wiki := &fakeWiki{
		revisions: []rfc.Revision{
			revision(11, "Removed: [[Talk:Ted Cruz]] [[Talk:Emily VanDerWerff]] [[Talk:Arthur Laffer]].", at),
			revision(21, "Adding [[Talk:Y]]", at.Add(time.Hour)),
			revision(31, "Removed: [[Talk:Gone]].", at.Add(2*time.Hour)),
			revision(41, "Removed: [[Talk:Broken]].", at.Add(3*time.Hour)),
			revision(51, "Removed: [[Talk:Plain]].", at.Add(4*time.Hour)),
		},
		diffs: map[int64]string{
			11: loadDiff(t, "multi_removal.html"),
			41: "<div>not a diff</div>",
			51: `<tr><td class="diff-marker"></td><td class="diff-deletedline"><div>no links</div></td></tr>`,
		},
	}
	store := newFakeStore()
	page := "Wikipedia:Requests for comment/Politics, government, and law"
	s := New(wiki, store, words.NewTable(), "Legobot", testLogger())

	run, err := s.Scan(context.Background(), page, 2021)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if run.State != rfc.RunCompleted {
		t.Errorf("State = %s, want completed", run.State)
	}
	if run.RevisionsExamined != 5 || run.RemovalsFound != 4 || run.RecordsSaved != 3 || run.Errors != 3 || run.Skipped != 0 {
		t.Errorf("counters = examined %d removals %d saved %d errors %d skipped %d, want 5/4/3/3/0",
			run.RevisionsExamined, run.RemovalsFound, run.RecordsSaved, run.Errors, run.Skipped)
	}
	if wiki.user != "Legobot" {
		t.Errorf("revisions listed for %q, want Legobot", wiki.user)
	}

	wantIDs := []string{"76C58B0", "C9A3824", "1AAC44C"}
	if len(store.records) != len(wantIDs) {
		t.Fatalf("stored %d records, want %d", len(store.records), len(wantIDs))
	}
	for i, r := range store.records {
		if r.Identifier != wantIDs[i] {
			t.Errorf("record %d identifier = %s, want %s", i, r.Identifier, wantIDs[i])
		}
		if r.RevisionID != 11 || r.ParentRevision != 10 || !r.RemovedAt.Equal(at) {
			t.Errorf("record %d revision = %d/%d at %v", i, r.RevisionID, r.ParentRevision, r.RemovedAt)
		}
		if r.ListPage != page || r.RunID != run.ID {
			t.Errorf("record %d list page %q run %q", i, r.ListPage, r.RunID)
		}
		if r.User == nil || r.OpenedAt == nil || r.Keywords == "" {
			t.Errorf("record %d missing attribution or keywords: %+v", i, r)
		}
	}

	if _, ok := store.marks[11]; !ok || len(store.marks) != 1 {
		t.Errorf("marked revisions = %v, want only 11", store.marks)
	}

	if len(store.runs) != 2 {
		t.Errorf("saved %d run snapshots, want 2", len(store.runs))
	}
	if store.runs[0].State != rfc.RunRunning {
		t.Errorf("first snapshot state = %s, want running", store.runs[0].State)
	}
	if last := store.lastRun(t); last.State != rfc.RunCompleted || last.FinishedAt.IsZero() {
		t.Errorf("last snapshot = %+v", last)
	}
}

func TestScanWindow(t *testing.T) {
	wiki := &fakeWiki{}
	s := New(wiki, newFakeStore(), nil, "Legobot", testLogger())
	run, err := s.Scan(context.Background(), "P", 2021)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	wantStart := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	if !wiki.start.Equal(wantStart) || !wiki.end.Equal(wantEnd) {
		t.Errorf("window = [%v, %v), want [%v, %v)", wiki.start, wiki.end, wantStart, wantEnd)
	}
	if !run.WindowStart.Equal(wantStart) || !run.WindowEnd.Equal(wantEnd) {
		t.Errorf("run window = [%v, %v)", run.WindowStart, run.WindowEnd)
	}
}

func TestScanSingleEntryWithoutUser(t *testing.T) {
	wiki := &fakeWiki{
		revisions: []rfc.Revision{revision(2, "Removed: [[Talk:X]].", time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))},
		diffs:     map[int64]string{2: sampleDiff},
	}
	store := newFakeStore()
	s := New(wiki, store, nil, "Legobot", testLogger())

	if _, err := s.Scan(context.Background(), "P", 2021); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(store.records))
	}
	r := store.records[0]
	if r.Identifier != "ABC123" {
		t.Errorf("Identifier = %q, want ABC123", r.Identifier)
	}
	if r.User != nil {
		t.Errorf("User = %q, want nil", *r.User)
	}
	want := time.Date(2020, 12, 24, 5, 33, 0, 0, time.UTC)
	if r.OpenedAt == nil || !r.OpenedAt.Equal(want) {
		t.Errorf("OpenedAt = %v, want %v", r.OpenedAt, want)
	}
	if r.LinkText != "[[Talk:X#rfc_ABC123|Talk:X]]" {
		t.Errorf("LinkText = %q", r.LinkText)
	}
}

func TestScanSkipsProcessedRevisions(t *testing.T) {
	wiki := &fakeWiki{
		revisions: []rfc.Revision{revision(2, "Removed: [[Talk:X]].", time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))},
		diffs:     map[int64]string{2: sampleDiff},
	}
	store := newFakeStore()
	store.marks[2] = storage.RevisionMark{RunID: "earlier"}
	s := New(wiki, store, nil, "Legobot", testLogger())

	run, err := s.Scan(context.Background(), "P", 2021)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if run.Skipped != 1 || run.RecordsSaved != 0 || len(wiki.compared) != 0 {
		t.Errorf("skipped %d saved %d compared %v, want 1/0/none", run.Skipped, run.RecordsSaved, wiki.compared)
	}
}

func TestScanFailures(t *testing.T) {
	removal := []rfc.Revision{revision(2, "Removed: [[Talk:X]].", time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))}
	storeDown := errors.New("store unavailable")
	listDown := errors.New("api down")

	tests := []struct {
		name    string
		wiki    *fakeWiki
		store   *fakeStore
		ctx     func() context.Context
		wantErr error
	}{
		{
			name:    "listing fails",
			wiki:    &fakeWiki{listErr: listDown},
			store:   newFakeStore(),
			ctx:     context.Background,
			wantErr: listDown,
		},
		{
			name:    "store fails",
			wiki:    &fakeWiki{revisions: removal, diffs: map[int64]string{2: sampleDiff}},
			store:   &fakeStore{marks: map[int64]storage.RevisionMark{}, appendErr: storeDown},
			ctx:     context.Background,
			wantErr: storeDown,
		},
		{
			name:  "cancelled",
			wiki:  &fakeWiki{revisions: removal, diffs: map[int64]string{2: sampleDiff}},
			store: newFakeStore(),
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.wiki, tt.store, nil, "Legobot", testLogger())
			run, err := s.Scan(tt.ctx(), "P", 2021)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Scan() error = %v, want %v", err, tt.wantErr)
			}
			if run == nil || run.State != rfc.RunFailed || run.Error == "" {
				t.Fatalf("Scan() run = %+v, want failed with error", run)
			}
			if last := tt.store.lastRun(t); last.State != rfc.RunFailed {
				t.Errorf("last snapshot state = %s, want failed", last.State)
			}
		})
	}
}

func TestScanYearsStopsOnFailure(t *testing.T) {
	wiki := &fakeWiki{listErr: errors.New("api down")}
	s := New(wiki, newFakeStore(), nil, "Legobot", testLogger())
	runs, err := s.ScanYears(context.Background(), "P", 2020, 3)
	if err == nil {
		t.Fatal("ScanYears() error = nil, want error")
	}
	if len(runs) != 1 || runs[0].Year != 2020 {
		t.Errorf("ScanYears() runs = %d, want only 2020", len(runs))
	}
}

func TestIsRemoval(t *testing.T) {
	tests := []struct {
		comment string
		want    bool
	}{
		{"Removed: [[Talk:X]].", true},
		{"removed expired RfC", true},
		{"Adding [[Talk:Y]]", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRemoval(tt.comment); got != tt.want {
			t.Errorf("IsRemoval(%q) = %v, want %v", tt.comment, got, tt.want)
		}
	}
}
