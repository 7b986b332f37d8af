package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Trends collects rising queries from Google Trends via SerpAPI. Discovery
// is seed-based: broad seed phrases pull in whatever is rising around them.
type Trends struct {
	serp          *SerpClient
	seeds         []string
	risingPerSeed int
	filter        *Filter
}

// NewTrends creates a Google Trends collector.
func NewTrends(serp *SerpClient, seeds []string, risingPerSeed int, filter *Filter) *Trends {
	if risingPerSeed <= 0 {
		risingPerSeed = 20
	}
	return &Trends{serp: serp, seeds: seeds, risingPerSeed: risingPerSeed, filter: filter}
}

func (t *Trends) Name() SourceID { return SourceTrends }

type trendsResponse struct {
	RelatedQueries struct {
		Rising []struct {
			Query          string `json:"query"`
			Value          string `json:"value"`
			ExtractedValue int    `json:"extracted_value"`
		} `json:"rising"`
	} `json:"related_queries"`
}

func (t *Trends) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, seed := range t.seeds {
		batch, err := t.collectSeed(ctx, seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  trends seed %q error: %v\n", seed, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (t *Trends) collectSeed(ctx context.Context, seed string) ([]Signal, error) {
	params := url.Values{}
	params.Set("engine", "google_trends")
	params.Set("data_type", "RELATED_QUERIES")
	params.Set("q", seed)

	var resp trendsResponse
	if err := t.serp.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var signals []Signal

	for i, rq := range resp.RelatedQueries.Rising {
		if i >= t.risingPerSeed {
			break
		}
		if t.filter != nil && !t.filter.Keep(rq.Query) {
			continue
		}

		engagement := float64(rq.ExtractedValue)
		if engagement == 0 {
			engagement = ParseEngagement(rq.Value)
		}

		signals = append(signals, Signal{
			SourceID:   SourceTrends,
			RawTitle:   rq.Query,
			Metrics:    map[string]float64{MetricEngagement: engagement},
			ObservedAt: now,
			Rank:       i + 1,
		})
	}

	return signals, nil
}
