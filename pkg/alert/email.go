package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// Email sends notifications through the Resend API.
type Email struct {
	client  *http.Client
	apiKey  string
	from    string
	to      []string
	baseURL string
}

// NewEmail creates a new Resend email notifier.
func NewEmail(apiKey, from string, to []string) *Email {
	return &Email{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		from:    from,
		to:      to,
		baseURL: resendEndpoint,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (e *Email) SetBaseURL(u string) { e.baseURL = u }

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, n *Notification) error {
	html := fmt.Sprintf(`<html><body>
<div style="background:#f9f9f9;padding:16px;border-radius:10px;">
  <h2 style="margin:0;color:#111;">%s</h2>
  <p style="margin:10px 0 0;color:#555;font-size:14px;">
    <b>Category:</b> %s &nbsp; | &nbsp; <b>Score:</b> %.1f/100
  </p>
  <p style="margin:10px 0 0;color:#555;font-size:13px;">%s</p>
  <p style="margin:10px 0 0;color:#888;font-size:12px;">Seen on: %s</p>
</div>
</body></html>`,
		n.Topic, prettyCategory(n.Category), n.Composite, n.Reason, strings.Join(n.Sources, ", "))

	payload := map[string]any{
		"from":    e.from,
		"to":      e.to,
		"subject": fmt.Sprintf("Trending now: %s (%s)", n.Topic, prettyCategory(n.Category)),
		"html":    html,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend status %d", resp.StatusCode)
	}

	return nil
}

func prettyCategory(c string) string {
	words := strings.Split(c, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
