package source

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFeed is a named RSS/Atom feed URL.
type RSSFeed struct {
	Name string
	URL  string
}

// RSS collects headlines from RSS/Atom feeds. Supplements the Google News
// collector with publications that rank poorly in aggregators.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []RSSFeed
	filter *Filter
}

// NewRSS creates a new RSS collector.
func NewRSS(feeds []RSSFeed, filter *Filter) *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
		filter: filter,
	}
}

func (r *RSS) Name() SourceID { return SourceRSS }

func (r *RSS) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, feed := range r.feeds {
		batch, err := r.collectFeed(ctx, feed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  rss feed %s error: %v\n", feed.Name, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed) ([]Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "trendwatch/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	var signals []Signal
	cutoff := time.Now().Add(-24 * time.Hour)

	for i, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		// Skip old items.
		if published.Before(cutoff) {
			continue
		}

		if r.filter != nil && !r.filter.Keep(entry.Title) {
			continue
		}

		signals = append(signals, Signal{
			SourceID:   SourceRSS,
			RawTitle:   entry.Title,
			Metrics:    map[string]float64{MetricVolume: 1},
			ObservedAt: published,
			Rank:       i + 1,
		})
	}

	return signals, nil
}
