package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const twitterSearchURL = "https://api.twitter.com/2/tweets/search/recent"

// Twitter collects recent tweets via the API v2 recent search endpoint.
type Twitter struct {
	client      *http.Client
	bearerToken string
	queries     []string
	maxResults  int
	filter      *Filter
	baseURL     string
}

// NewTwitter creates a Twitter/X collector.
func NewTwitter(bearerToken string, queries []string, maxResults int, filter *Filter) *Twitter {
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 80
	}
	return &Twitter{
		client:      &http.Client{Timeout: 30 * time.Second},
		bearerToken: bearerToken,
		queries:     queries,
		maxResults:  maxResults,
		filter:      filter,
		baseURL:     twitterSearchURL,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (t *Twitter) SetBaseURL(u string) { t.baseURL = u }

func (t *Twitter) Name() SourceID { return SourceTwitter }

type twitterResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			LikeCount    int `json:"like_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (t *Twitter) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, query := range t.queries {
		batch, err := t.collectQuery(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  twitter query %q error: %v\n", query, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (t *Twitter) collectQuery(ctx context.Context, query string) ([]Signal, error) {
	params := url.Values{}
	params.Set("query", query+" -is:retweet lang:en")
	params.Set("max_results", fmt.Sprintf("%d", t.maxResults))
	params.Set("tweet.fields", "public_metrics,created_at")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create twitter request %q: %w", query, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	req.Header.Set("User-Agent", "trendwatch/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch twitter %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter %q status %d", query, resp.StatusCode)
	}

	var tr twitterResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode twitter %q response: %w", query, err)
	}

	var signals []Signal
	for i, tweet := range tr.Data {
		title := firstLine(tweet.Text)
		if t.filter != nil && !t.filter.Keep(title) {
			continue
		}

		observed := tweet.CreatedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}

		m := tweet.PublicMetrics
		engagement := float64(m.LikeCount + m.RetweetCount + m.ReplyCount + m.QuoteCount)

		signals = append(signals, Signal{
			SourceID:   SourceTwitter,
			RawTitle:   truncate(title, 120),
			Metrics:    map[string]float64{MetricEngagement: engagement},
			ObservedAt: observed.UTC(),
			Rank:       i + 1,
		})
	}

	return signals, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
