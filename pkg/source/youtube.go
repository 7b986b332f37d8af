package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"
)

// YouTube collects video search results via SerpAPI.
type YouTube struct {
	serp    *SerpClient
	queries []string
	perSeed int
	filter  *Filter
}

// NewYouTube creates a YouTube collector.
func NewYouTube(serp *SerpClient, queries []string, perSeed int, filter *Filter) *YouTube {
	if perSeed <= 0 {
		perSeed = 12
	}
	return &YouTube{serp: serp, queries: queries, perSeed: perSeed, filter: filter}
}

func (y *YouTube) Name() SourceID { return SourceYouTube }

type youtubeResponse struct {
	VideoResults []struct {
		Position int     `json:"position"`
		Title    string  `json:"title"`
		Views    float64 `json:"views"`
	} `json:"video_results"`
}

func (y *YouTube) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, query := range y.queries {
		batch, err := y.collectQuery(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  youtube query %q error: %v\n", query, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (y *YouTube) collectQuery(ctx context.Context, query string) ([]Signal, error) {
	params := url.Values{}
	params.Set("engine", "youtube")
	params.Set("search_query", query)

	var resp youtubeResponse
	if err := y.serp.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var signals []Signal

	for i, video := range resp.VideoResults {
		if i >= y.perSeed {
			break
		}
		if y.filter != nil && !y.filter.Keep(video.Title) {
			continue
		}

		rank := video.Position
		if rank == 0 {
			rank = i + 1
		}

		signals = append(signals, Signal{
			SourceID:   SourceYouTube,
			RawTitle:   video.Title,
			Metrics:    map[string]float64{MetricEngagement: video.Views},
			ObservedAt: now,
			Rank:       rank,
		})
	}

	return signals, nil
}
