package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrNotLoggedIn is returned by Edit before a successful Login.
var ErrNotLoggedIn = errors.New("not logged in")

func (c *Client) token(ctx context.Context, kind string) (string, error) {
	params := url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {kind},
	}
	var resp struct {
		Query struct {
			Tokens map[string]string `json:"tokens"`
		} `json:"query"`
	}
	if err := c.call(ctx, http.MethodGet, params, &resp); err != nil {
		return "", fmt.Errorf("fetch %s token: %w", kind, err)
	}
	tok := resp.Query.Tokens[kind+"token"]
	if tok == "" {
		return "", fmt.Errorf("no %s token in response", kind)
	}
	return tok, nil
}

// Login starts a session with a bot password. The session cookie is kept
// in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) error {
	tok, err := c.token(ctx, "login")
	if err != nil {
		return err
	}
	params := url.Values{
		"action":     {"login"},
		"lgname":     {username},
		"lgpassword": {password},
		"lgtoken":    {tok},
	}
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := c.call(ctx, http.MethodPost, params, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Login.Result != "Success" {
		return fmt.Errorf("login as %s: %s %s", username, resp.Login.Result, resp.Login.Reason)
	}
	c.loggedIn.Store(true)
	c.logger.Info("Logged in to wiki", "user", username)
	return nil
}

// Edit replaces the text of a page and returns the new revision id.
func (c *Client) Edit(ctx context.Context, title, text, summary string) (int64, error) {
	if !c.loggedIn.Load() {
		return 0, ErrNotLoggedIn
	}
	tok, err := c.token(ctx, "csrf")
	if err != nil {
		return 0, err
	}
	params := url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {text},
		"summary": {summary},
		"bot":     {"1"},
		"token":   {tok},
	}
	var resp struct {
		Edit struct {
			Result   string `json:"result"`
			NewRevID int64  `json:"newrevid"`
		} `json:"edit"`
	}
	if err := c.call(ctx, http.MethodPost, params, &resp); err != nil {
		return 0, fmt.Errorf("edit %q: %w", title, err)
	}
	if resp.Edit.Result != "Success" {
		return 0, fmt.Errorf("edit %q: result %s", title, resp.Edit.Result)
	}
	c.logger.Info("Page edited", "title", title, "revision_id", resp.Edit.NewRevID, "bytes", len(text))
	return resp.Edit.NewRevID, nil
}
