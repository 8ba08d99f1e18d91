package reconcile

import (
	"testing"
	"time"

	"rfc-tracker/pkg/rfc"
)

var base = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id, listPage string, revision int64, offset time.Duration) *rfc.Record {
	return &rfc.Record{
		Identifier: id,
		ListPage:   listPage,
		RevisionID: revision,
		RemovedAt:  base.Add(offset),
	}
}

func revisions(records []*rfc.Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.RevisionID
	}
	return ids
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListShortcut(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"Wikipedia:Requests for comment/Biographies", "Biographies"},
		{"Wikipedia:Requests_for_comment/Politics,_government,_and_law", "Politics, government, and law"},
		{"Plain page", "Plain page"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ListShortcut(tt.page); got != tt.want {
			t.Errorf("ListShortcut(%q) = %q, want %q", tt.page, got, tt.want)
		}
	}
}

func TestReconcile(t *testing.T) {
	bio := "Wikipedia:Requests for comment/Biographies"
	pol := "Wikipedia:Requests for comment/Politics, government, and law"

	tests := []struct {
		name    string
		records []*rfc.Record
		want    []int64
	}{
		{
			name:    "empty",
			records: nil,
			want:    []int64{},
		},
		{
			name:    "single record",
			records: []*rfc.Record{record("A", bio, 1, 0)},
			want:    []int64{1},
		},
		{
			name:    "equal timestamps keep input order",
			records: []*rfc.Record{record("A", bio, 2, 0), record("A", bio, 1, 0)},
			want:    []int64{2, 1},
		},
		{
			name: "first and last per page",
			records: []*rfc.Record{
				record("A", bio, 3, 3*time.Hour),
				record("A", bio, 1, time.Hour),
				record("A", bio, 2, 2*time.Hour),
			},
			want: []int64{1, 3},
		},
		{
			name: "pages merged by time",
			records: []*rfc.Record{
				record("A", bio, 10, 10*time.Hour),
				record("A", pol, 5, 5*time.Hour),
				record("A", bio, 1, time.Hour),
				record("A", pol, 20, 20*time.Hour),
				record("A", pol, 7, 7*time.Hour),
			},
			want: []int64{1, 5, 10, 20},
		},
		{
			name: "underscore titles share a group",
			records: []*rfc.Record{
				record("A", "Wikipedia:Requests_for_comment/Biographies", 1, time.Hour),
				record("A", bio, 2, 2*time.Hour),
				record("A", bio, 3, 3*time.Hour),
			},
			want: []int64{1, 3},
		},
		{
			name:    "removal stored twice",
			records: []*rfc.Record{record("A", bio, 100, time.Hour), record("A", bio, 100, time.Hour)},
			want:    []int64{100},
		},
		{
			name: "repeated last removal",
			records: []*rfc.Record{
				record("A", bio, 100, time.Hour),
				record("A", bio, 200, 2*time.Hour),
				record("A", bio, 200, 2*time.Hour),
			},
			want: []int64{100, 200},
		},
		{
			name:    "same revision on two pages",
			records: []*rfc.Record{record("A", bio, 100, time.Hour), record("A", pol, 100, time.Hour)},
			want:    []int64{100, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := revisions(Reconcile(tt.records))
			if !equal(got, tt.want) {
				t.Errorf("Reconcile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReconcileAtMostTwoPerGroup(t *testing.T) {
	var records []*rfc.Record
	pages := []string{"RFC/A", "RFC/B", "RFC/C"}
	for i := range 30 {
		records = append(records, record("X", pages[i%len(pages)], int64(i), time.Duration(i)*time.Minute))
	}

	counts := make(map[string]int)
	for _, r := range Reconcile(records) {
		counts[ListShortcut(r.ListPage)]++
	}
	for _, p := range pages {
		if counts[ListShortcut(p)] != 2 {
			t.Errorf("group %s emitted %d records, want 2", p, counts[ListShortcut(p)])
		}
	}
}

func TestByIdentifier(t *testing.T) {
	records := []*rfc.Record{
		record("LATE", "RFC/A", 5, 5*time.Hour),
		record("EARLY", "RFC/A", 1, time.Hour),
		record("LATE", "RFC/A", 9, 9*time.Hour),
		record("EARLY", "RFC/B", 2, 2*time.Hour),
	}
	groups := ByIdentifier(records)
	if len(groups) != 2 {
		t.Fatalf("ByIdentifier() returned %d groups, want 2", len(groups))
	}
	if groups[0].Identifier != "EARLY" || !equal(revisions(groups[0].Records), []int64{1, 2}) {
		t.Errorf("groups[0] = %s %v, want EARLY [1 2]", groups[0].Identifier, revisions(groups[0].Records))
	}
	if groups[1].Identifier != "LATE" || !equal(revisions(groups[1].Records), []int64{5, 9}) {
		t.Errorf("groups[1] = %s %v, want LATE [5 9]", groups[1].Identifier, revisions(groups[1].Records))
	}
}
