// Package words derives short keyword summaries from RFC text.
package words

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

const (
	seedWeight  = 1000
	commonLimit = 10   // Words seen this often are too common to be keywords
	maxWords    = 1000 // Bound on kept words and on the frequency table
	maxKeywords = 20
)

var (
	wordRegex = regexp.MustCompile(`[a-zA-Z]+`)

	seedWords = []string{
		"rfcquote", "text", "user", "talk", "rfc", "the", "and", "a", "of", "to", "in",
		"is", "that", "it", "as", "for", "on", "with", "this", "by", "an", "be",
	}
)

// Table counts how often words appear across every text it has seen.
// One Table lives for the whole process and is safe for concurrent use.
type Table struct {
	counts map[string]int
	mu     sync.Mutex
}

// NewTable returns a table seeded with common English and wiki words.
func NewTable() *Table {
	t := &Table{counts: make(map[string]int, len(seedWords))}
	for _, w := range seedWords {
		t.counts[w] = seedWeight
	}
	return t
}

// Extract records the words of text and returns up to 20 of its uncommon
// words, in order of first appearance, joined by spaces.
func (t *Table) Extract(text string) string {
	found := wordRegex.FindAllString(text, -1)
	if len(found) == 0 {
		return ""
	}

	t.mu.Lock()
	for _, w := range found {
		t.counts[strings.ToLower(w)]++
	}

	kept := make([]string, 0, len(found))
	for _, w := range found {
		if t.counts[strings.ToLower(w)] < commonLimit {
			kept = append(kept, w)
		}
	}

	if len(kept) > maxWords {
		slices.SortStableFunc(kept, func(a, b string) int {
			return cmp.Compare(t.counts[strings.ToLower(a)], t.counts[strings.ToLower(b)])
		})
		kept = kept[:maxWords]
		t.prune(kept)
	}
	t.mu.Unlock()

	seen := make(map[string]bool, len(kept))
	out := make([]string, 0, maxKeywords)
	for _, w := range kept {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return strings.Join(out, " ")
}

// prune drops every counted word not in keep. Caller holds mu.
func (t *Table) prune(keep []string) {
	set := make(map[string]bool, len(keep))
	for _, w := range keep {
		set[strings.ToLower(w)] = true
	}
	for w := range t.counts {
		if !set[w] {
			delete(t.counts, w)
		}
	}
}

// Count returns how many times a word has been seen, seed weight included.
func (t *Table) Count(word string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[strings.ToLower(word)]
}

// Len returns the number of distinct words in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}
