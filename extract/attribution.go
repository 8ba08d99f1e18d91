package extract

import (
	"regexp"
	"strings"
	"time"
)

// SignatureLayout is the wiki's signature timestamp format, without the " (UTC)" suffix.
const SignatureLayout = "15:04, 2 January 2006"

var (
	// The rfcquote template closes right after the opener's signature.
	openedRegex      = regexp.MustCompile(`\d{2}:\d{2}, \d{1,2} \w+ \d{4} \(UTC\)\}\}`)
	userTalkRegex    = regexp.MustCompile(`\[\[User talk:([^|\]\n]+)\|`)
	contributorRegex = regexp.MustCompile(`\[\[Special:Contributions/([^|\]\n]+)\|`)
)

// Attribution holds what could be recovered about an RFC's opener.
// Either field may be nil; partial results are normal for older entries.
type Attribution struct {
	User      *string
	OpenedAt  *time.Time
	UserMatch string // Matched user link text, empty if none
	DateMatch string // Matched timestamp text, empty if none
}

// Attribute finds the opening user and timestamp in an RFC entry's text.
// The first match of each pattern wins; the contributions link is only
// consulted when no user talk link is present.
func Attribute(spanText string) Attribution {
	var a Attribution

	if m := openedRegex.FindString(spanText); m != "" {
		a.DateMatch = m
		if t, err := time.Parse(SignatureLayout, strings.TrimSuffix(m, " (UTC)}}")); err == nil {
			a.OpenedAt = &t
		}
	}

	if m := userTalkRegex.FindStringSubmatch(spanText); m != nil {
		a.UserMatch = m[0]
		user := strings.TrimSpace(m[1])
		a.User = &user
	} else if m := contributorRegex.FindStringSubmatch(spanText); m != nil {
		a.UserMatch = m[0]
		user := strings.TrimSpace(m[1])
		a.User = &user
	}

	return a
}
