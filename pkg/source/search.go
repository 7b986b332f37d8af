package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Search collects related searches and organic result titles from Google
// Search via SerpAPI.
type Search struct {
	serp           *SerpClient
	seeds          []string
	relatedPerSeed int
	organicPerSeed int
	filter         *Filter
}

// NewSearch creates a Google Search collector.
func NewSearch(serp *SerpClient, seeds []string, relatedPerSeed, organicPerSeed int, filter *Filter) *Search {
	if relatedPerSeed <= 0 {
		relatedPerSeed = 12
	}
	if organicPerSeed <= 0 {
		organicPerSeed = 10
	}
	return &Search{
		serp:           serp,
		seeds:          seeds,
		relatedPerSeed: relatedPerSeed,
		organicPerSeed: organicPerSeed,
		filter:         filter,
	}
}

func (s *Search) Name() SourceID { return SourceSearch }

type searchResponse struct {
	RelatedSearches []struct {
		Query string `json:"query"`
	} `json:"related_searches"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
	} `json:"organic_results"`
}

func (s *Search) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, seed := range s.seeds {
		batch, err := s.collectSeed(ctx, seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  search seed %q error: %v\n", seed, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (s *Search) collectSeed(ctx context.Context, seed string) ([]Signal, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", seed)

	var resp searchResponse
	if err := s.serp.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var signals []Signal

	for i, rs := range resp.RelatedSearches {
		if i >= s.relatedPerSeed {
			break
		}
		if s.filter != nil && !s.filter.Keep(rs.Query) {
			continue
		}
		signals = append(signals, Signal{
			SourceID:   SourceSearch,
			RawTitle:   rs.Query,
			Metrics:    map[string]float64{MetricVolume: 1},
			ObservedAt: now,
			Rank:       i + 1,
		})
	}

	for i, org := range resp.OrganicResults {
		if i >= s.organicPerSeed {
			break
		}
		if s.filter != nil && !s.filter.Keep(org.Title) {
			continue
		}
		rank := org.Position
		if rank == 0 {
			rank = i + 1
		}
		signals = append(signals, Signal{
			SourceID:   SourceSearch,
			RawTitle:   org.Title,
			Metrics:    map[string]float64{MetricVolume: 1},
			ObservedAt: now,
			Rank:       rank,
		})
	}

	return signals, nil
}
