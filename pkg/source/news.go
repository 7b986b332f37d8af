package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"
)

// News collects headlines from Google News via SerpAPI.
type News struct {
	serp    *SerpClient
	terms   []string
	perTerm int
	filter  *Filter
}

// NewNews creates a Google News collector.
func NewNews(serp *SerpClient, terms []string, perTerm int, filter *Filter) *News {
	if perTerm <= 0 {
		perTerm = 12
	}
	return &News{serp: serp, terms: terms, perTerm: perTerm, filter: filter}
}

func (n *News) Name() SourceID { return SourceNews }

type newsResponse struct {
	NewsResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Source   struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"news_results"`
}

func (n *News) Collect(ctx context.Context) ([]Signal, error) {
	var signals []Signal

	for _, term := range n.terms {
		batch, err := n.collectTerm(ctx, term)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  news term %q error: %v\n", term, err)
			continue
		}
		signals = append(signals, batch...)
	}

	return signals, nil
}

func (n *News) collectTerm(ctx context.Context, term string) ([]Signal, error) {
	params := url.Values{}
	params.Set("engine", "google_news")
	params.Set("q", term)

	var resp newsResponse
	if err := n.serp.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var signals []Signal

	for i, article := range resp.NewsResults {
		if i >= n.perTerm {
			break
		}
		if n.filter != nil && !n.filter.Keep(article.Title) {
			continue
		}

		rank := article.Position
		if rank == 0 {
			rank = i + 1
		}

		// Headlines carry no native engagement; each article counts as
		// one unit of news volume.
		signals = append(signals, Signal{
			SourceID:   SourceNews,
			RawTitle:   article.Title,
			Metrics:    map[string]float64{MetricVolume: 1},
			ObservedAt: now,
			Rank:       rank,
		})
	}

	return signals, nil
}
