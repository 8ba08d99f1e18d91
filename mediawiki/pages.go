package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rfc-tracker/pkg/rfc"
)

type queryPage struct {
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	Revisions []struct {
		Slots struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
}

// PageText returns the current wikitext of a page.
func (c *Client) PageText(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":    {"query"},
		"prop":      {"revisions"},
		"titles":    {title},
		"rvprop":    {"content"},
		"rvslots":   {"main"},
		"redirects": {"1"},
	}
	var resp struct {
		Query struct {
			Pages []queryPage `json:"pages"`
		} `json:"query"`
	}
	if err := c.call(ctx, http.MethodGet, params, &resp); err != nil {
		return "", fmt.Errorf("fetch page %q: %w", title, err)
	}

	if len(resp.Query.Pages) == 0 {
		return "", &PageNotFoundError{Title: title}
	}
	page := resp.Query.Pages[0]
	if page.Missing || page.Invalid || len(page.Revisions) == 0 {
		return "", &PageNotFoundError{Title: title}
	}

	text := page.Revisions[0].Slots.Main.Content
	c.logger.Info("Page fetched", "title", title, "bytes", len(text))
	return text, nil
}

// KillSwitch reports whether the kill page asks the bot to stop.
// A missing page means keep running.
func (c *Client) KillSwitch(ctx context.Context, title string) (bool, error) {
	text, err := c.PageText(ctx, title)
	if err != nil {
		if IsPageNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if strings.Contains(strings.ToLower(text), "kill") {
		c.logger.Warn("Kill page detected", "title", title)
		return true, nil
	}
	return false, nil
}

// Compare returns the rendered table diff between two revisions.
func (c *Client) Compare(ctx context.Context, fromRev, toRev int64) (string, error) {
	params := url.Values{
		"action":  {"compare"},
		"fromrev": {strconv.FormatInt(fromRev, 10)},
		"torev":   {strconv.FormatInt(toRev, 10)},
		"prop":    {"diff|ids"},
	}
	var resp struct {
		Compare struct {
			Body string `json:"body"`
		} `json:"compare"`
	}
	if err := c.call(ctx, http.MethodGet, params, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", &DiffUnavailableError{From: fromRev, To: toRev, Reason: apiErr.Code}
		}
		return "", fmt.Errorf("compare %d..%d: %w", fromRev, toRev, err)
	}
	if strings.TrimSpace(resp.Compare.Body) == "" {
		return "", &DiffUnavailableError{From: fromRev, To: toRev, Reason: "empty diff"}
	}
	return resp.Compare.Body, nil
}

// Revisions lists a page's revisions by user in [start, end), oldest first.
// An empty user lists every author.
func (c *Client) Revisions(ctx context.Context, page, user string, start, end time.Time) ([]rfc.Revision, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {page},
		"rvprop":  {"ids|timestamp|user|comment"},
		"rvdir":   {"newer"},
		"rvstart": {start.UTC().Format(time.RFC3339)},
		"rvend":   {end.UTC().Add(-time.Second).Format(time.RFC3339)},
		"rvlimit": {"max"},
	}
	if user != "" {
		params.Set("rvuser", user)
	}

	var revisions []rfc.Revision
	for batch := 1; ; batch++ {
		var resp struct {
			Continue map[string]string `json:"continue"`
			Query    struct {
				Pages []struct {
					Missing   bool           `json:"missing"`
					Revisions []rfc.Revision `json:"revisions"`
				} `json:"pages"`
			} `json:"query"`
		}
		if err := c.call(ctx, http.MethodGet, params, &resp); err != nil {
			return nil, fmt.Errorf("list revisions of %q: %w", page, err)
		}
		if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
			return nil, &PageNotFoundError{Title: page}
		}

		for _, rev := range resp.Query.Pages[0].Revisions {
			if !rev.Timestamp.Before(end) {
				continue
			}
			revisions = append(revisions, rev)
		}
		c.logger.Debug("Revision batch fetched", "page", page, "batch", batch, "total", len(revisions))

		if len(resp.Continue) == 0 {
			break
		}
		for k, v := range resp.Continue {
			params.Set(k, v)
		}
	}

	c.logger.Info("Revisions listed",
		"page", page,
		"user", user,
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"count", len(revisions))
	return revisions, nil
}
