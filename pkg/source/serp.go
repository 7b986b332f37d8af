package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultSerpBaseURL = "https://serpapi.com/search.json"

// SerpClient talks to SerpAPI, shared by the Google-backed collectors.
type SerpClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewSerpClient creates a SerpAPI client.
func NewSerpClient(apiKey string) *SerpClient {
	return &SerpClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		apiKey:  apiKey,
		baseURL: defaultSerpBaseURL,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *SerpClient) SetBaseURL(u string) { c.baseURL = u }

func (c *SerpClient) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create serpapi request: %w", err)
	}
	req.Header.Set("User-Agent", "trendwatch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch serpapi %s: %w", params.Get("engine"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serpapi %s status %d", params.Get("engine"), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode serpapi %s response: %w", params.Get("engine"), err)
	}
	return nil
}
