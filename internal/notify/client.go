package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Settlement is the payload posted to the group webhook when a session is
// settled against a member's ledger.
type Settlement struct {
	Member            string `json:"member"`
	SessionDate       string `json:"session_date"`
	TotalStudySeconds int64  `json:"total_study_seconds"`
	DebtSeconds       int64  `json:"debt_seconds"`
	Forced            bool   `json:"forced"`
}

// Client posts settlement notifications to a group-chat webhook.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, sends are logged-and-dropped, which
// keeps dev environments free of a webhook dependency.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks the webhook endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook health returned %d", resp.StatusCode)
	}
	return nil
}

// SendSettlement posts one settlement event.
func (c *Client) SendSettlement(ctx context.Context, s Settlement) error {
	if c.Skip {
		return nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/settlements", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
