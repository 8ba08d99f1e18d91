// Package reconcile reduces the history of one RFC to the revisions that
// first and last touched it on each list page.
package reconcile

import (
	"slices"
	"strings"

	"rfc-tracker/pkg/rfc"
)

// ListShortcut returns the short name of a list page: the final path
// segment of the title with underscores shown as spaces.
// "Wikipedia:Requests_for_comment/Biographies" becomes "Biographies".
func ListShortcut(listPage string) string {
	s := listPage
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// Reconcile returns the earliest and latest record per list page, merged
// and ordered by removal time. A page with a single record contributes it
// once, as does a removal stored more than once under the same revision.
// Records with equal timestamps keep their input order.
func Reconcile(records []*rfc.Record) []*rfc.Record {
	var order []string
	groups := make(map[string][]*rfc.Record)
	for _, r := range records {
		if r == nil {
			continue
		}
		key := ListShortcut(r.ListPage)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]*rfc.Record, 0, 2*len(order))
	for _, key := range order {
		g := distinct(groups[key])
		slices.SortStableFunc(g, byRemoval)
		out = append(out, g[0])
		if len(g) > 1 {
			out = append(out, g[len(g)-1])
		}
	}
	slices.SortStableFunc(out, byRemoval)
	return out
}

// Group is the reconciled history of one identifier.
type Group struct {
	Identifier string
	Records    []*rfc.Record
}

// ByIdentifier reconciles records for many RFCs at once, ordered by each
// group's earliest removal.
func ByIdentifier(records []*rfc.Record) []Group {
	var order []string
	byID := make(map[string][]*rfc.Record)
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, ok := byID[r.Identifier]; !ok {
			order = append(order, r.Identifier)
		}
		byID[r.Identifier] = append(byID[r.Identifier], r)
	}

	groups := make([]Group, 0, len(order))
	for _, id := range order {
		groups = append(groups, Group{Identifier: id, Records: Reconcile(byID[id])})
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return byRemoval(a.Records[0], b.Records[0])
	})
	return groups
}

type removal struct {
	revision   int64
	identifier string
}

// distinct drops repeats of a (revision, identifier) pair, keeping the first.
// Records without a revision id are all kept.
func distinct(records []*rfc.Record) []*rfc.Record {
	seen := make(map[removal]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if r.RevisionID != 0 {
			k := removal{r.RevisionID, r.Identifier}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, r)
	}
	return out
}

func byRemoval(a, b *rfc.Record) int {
	return a.RemovedAt.Compare(b.RemovedAt)
}
