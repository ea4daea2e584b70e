// Package remote is the HTTP collaborator that confirms and deletes events
// on an upstream scheduler backend.
package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"scheditor/internal/model"
)

// Client implements editor.Confirmer and editor.Remover over HTTP.
type Client struct {
	base string
	http *resty.Client
}

type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(tok string) Option {
	return func(c *Client) {
		if tok != "" {
			c.http.SetAuthToken(tok)
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithResty replaces the underlying client (tests).
func WithResty(r *resty.Client) Option {
	return func(c *Client) { c.http = r }
}

// New returns a client for base, e.g. "https://api.example.com/v1".
func New(base string, opts ...Option) *Client {
	c := &Client{base: strings.TrimRight(base, "/"), http: resty.New()}
	for _, o := range opts {
		o(c)
	}
	c.http.SetHeader("Accept", "application/json")
	return c
}

type confirmRequest struct {
	Event  model.EventRecord `json:"event"`
	Action model.Action      `json:"action"`
}

// Confirm posts the draft and returns the record the backend stored.
func (c *Client) Confirm(ctx context.Context, draft model.EventRecord, action model.Action) (model.EventRecord, error) {
	var out model.EventRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(confirmRequest{Event: draft, Action: action}).
		SetResult(&out).
		Post(c.base + "/events/confirm")
	if err != nil {
		return model.EventRecord{}, err
	}
	if resp.IsError() {
		return model.EventRecord{}, restyErr(resp)
	}
	return out, nil
}

type deleteBody struct {
	EventID any `json:"event_id"`
}

// Remove asks the backend to delete id. It returns the id the backend
// actually removed; "" means the event must be kept locally.
func (c *Client) Remove(ctx context.Context, id string) (string, error) {
	var out deleteBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(deleteBody{EventID: id}).
		SetResult(&out).
		Post(c.base + "/events/delete")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", restyErr(resp)
	}
	return idString(out.EventID), nil
}

// idString accepts string or numeric ids; null, false and 0 mean "keep".
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	case nil, bool:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func restyErr(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Errorf("%s", resp.Status())
	}
	return fmt.Errorf("%s: %s", resp.Status(), body)
}
