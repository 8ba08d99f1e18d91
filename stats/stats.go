// Package stats scores RFC discussion sections by participant.
package stats

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"rfc-tracker/pkg/rfc"
)

const userTalkPrefix = "User talk:"

// signatureRegex matches the timestamps that close a signed comment.
var signatureRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z|\d{2}:\d{2}, \d{1,2} [A-Za-z]+ \d{4} \(UTC\)`)

// Result is the outcome of scanning one section.
type Result struct {
	Participants map[string]rfc.ParticipantStat
	Unattributed []rfc.Node // Nodes preceding a signature that were not user talk links
}

// Aggregate walks section nodes once, crediting the text accumulated since
// the previous signature to the user whose talk link precedes each timestamp.
func Aggregate(nodes []rfc.Node) Result {
	res := Result{Participants: make(map[string]rfc.ParticipantStat)}

	pending := 0
	var prev *rfc.Node
	for i := range nodes {
		node := &nodes[i]
		loc := signatureLocation(node)
		if loc == nil {
			pending += len(node.Raw)
			prev = node
			continue
		}

		if prev != nil {
			if user, ok := signer(prev); ok {
				st := res.Participants[user]
				st.Mentions++
				st.Contributed += pending
				res.Participants[user] = st
				pending = len(node.Raw) - loc[1]
			} else {
				res.Unattributed = append(res.Unattributed, *prev)
			}
		}
		prev = node
	}
	return res
}

// signatureLocation returns the span of the first timestamp in a text node.
func signatureLocation(n *rfc.Node) []int {
	if n.Kind != rfc.Text {
		return nil
	}
	return signatureRegex.FindStringIndex(n.Raw)
}

// signer returns the username of a [[User talk:...]] link.
func signer(n *rfc.Node) (string, bool) {
	if n.Kind != rfc.Wikilink {
		return "", false
	}
	title := strings.TrimSpace(n.Title)
	if !strings.HasPrefix(title, userTalkPrefix) {
		return "", false
	}
	user, _, _ := strings.Cut(title[len(userTalkPrefix):], "|")
	user = strings.TrimSpace(user)
	return user, user != ""
}

// Top returns participant names ordered by mentions, then contributed bytes,
// then name.
func Top(participants map[string]rfc.ParticipantStat) []string {
	names := make([]string, 0, len(participants))
	for name := range participants {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		pa, pb := participants[a], participants[b]
		if c := cmp.Compare(pb.Mentions, pa.Mentions); c != 0 {
			return c
		}
		if c := cmp.Compare(pb.Contributed, pa.Contributed); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}
