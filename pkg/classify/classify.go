// Package classify assigns newly discovered topics to dashboard
// categories. The engine consults it once per topic, at creation;
// classification errors are non-fatal and the topic is retried later.
package classify

import (
	"context"
	"sort"
	"strings"
)

// Unclassified is the category given to topics whose classification
// failed or matched nothing.
const Unclassified = "unclassified"

// Classifier assigns a category to a topic title.
type Classifier interface {
	Classify(ctx context.Context, topic string) (string, error)
}

// Keyword classifies by per-category keyword lists. Used standalone when
// no model client is configured, and as the fallback when the model
// returns something outside the category set.
type Keyword struct {
	categories []categoryKeywords
}

type categoryKeywords struct {
	name  string
	words []string
}

// NewKeyword creates a keyword classifier. Category order is made
// deterministic so equal hit counts always resolve the same way.
func NewKeyword(categories map[string][]string) *Keyword {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	k := &Keyword{}
	for _, name := range names {
		words := make([]string, len(categories[name]))
		for i, w := range categories[name] {
			words[i] = strings.ToLower(w)
		}
		k.categories = append(k.categories, categoryKeywords{name: name, words: words})
	}
	return k
}

func (k *Keyword) Classify(_ context.Context, topic string) (string, error) {
	lower := strings.ToLower(topic)

	best := Unclassified
	bestHits := 0
	for _, cat := range k.categories {
		hits := 0
		for _, w := range cat.words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best = cat.name
			bestHits = hits
		}
	}
	return best, nil
}
