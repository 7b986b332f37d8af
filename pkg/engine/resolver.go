package engine

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwheaton/trendwatch/pkg/classify"
	"github.com/jwheaton/trendwatch/pkg/source"
)

// Resolver merges raw signal titles into canonical topics. Matching blends
// token overlap with edit distance; anything below the similarity
// threshold becomes a new topic, and ambiguous ties never merge silently.
type Resolver struct {
	threshold  float64
	margin     float64
	classifier classify.Classifier
	log        zerolog.Logger
}

// NewResolver creates a resolver. classifier may be nil; topics are then
// created unclassified.
func NewResolver(threshold, margin float64, classifier classify.Classifier, log zerolog.Logger) *Resolver {
	return &Resolver{
		threshold:  threshold,
		margin:     margin,
		classifier: classifier,
		log:        log,
	}
}

type candidate struct {
	topic *Topic
	sim   float64
}

// Resolve assigns a signal to an existing topic or creates a new one. The
// returned bool is true when a topic was created. Only topics in the
// active set are considered for merging.
func (r *Resolver) Resolve(ctx context.Context, topics map[string]*Topic, active map[string]bool, sig source.Signal, now time.Time) (*Topic, bool) {
	sigTokens := significantTokens(sig.RawTitle)
	sigNorm := source.NormalizeTitle(sig.RawTitle)

	var cands []candidate
	for id, t := range topics {
		if active != nil && !active[id] {
			continue
		}
		sim := r.topicSimilarity(t, sigTokens, sigNorm)
		if sim >= r.threshold {
			cands = append(cands, candidate{topic: t, sim: sim})
		}
	}

	if len(cands) == 0 {
		return r.create(ctx, sig, now), true
	}

	best := pickCandidate(cands, r.margin)
	if best == nil {
		// Tie unresolved by the stability heuristic: uncertain evidence,
		// create a new topic rather than merge.
		r.log.Warn().
			Str("title", sig.RawTitle).
			Int("candidates", len(cands)).
			Msg("ambiguous topic match, creating new topic")
		return r.create(ctx, sig, now), true
	}

	t := best
	t.AddAlias(sig.RawTitle)
	t.Signals = append(t.Signals, sig)
	if sig.ObservedAt.After(t.LastUpdated) {
		t.LastUpdated = sig.ObservedAt
	}
	return t, false
}

// pickCandidate applies the order-independent tie-break chain: candidates
// within margin of the best similarity are considered tied; among those
// the largest cumulative signal count wins (popular topics absorb
// ambiguous matches), then earliest first_seen, then smallest ID. A tie
// that survives count AND first_seen is ambiguous and returns nil.
func pickCandidate(cands []candidate, margin float64) *Topic {
	bestSim := cands[0].sim
	for _, c := range cands[1:] {
		if c.sim > bestSim {
			bestSim = c.sim
		}
	}

	var tied []candidate
	for _, c := range cands {
		if bestSim-c.sim <= margin {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0].topic
	}

	sort.Slice(tied, func(i, j int) bool {
		a, b := tied[i].topic, tied[j].topic
		if len(a.Signals) != len(b.Signals) {
			return len(a.Signals) > len(b.Signals)
		}
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return a.ID < b.ID
	})

	a, b := tied[0].topic, tied[1].topic
	if len(a.Signals) == len(b.Signals) && a.FirstSeen.Equal(b.FirstSeen) {
		return nil
	}
	return a
}

func (r *Resolver) create(ctx context.Context, sig source.Signal, now time.Time) *Topic {
	t := &Topic{
		ID:          uuid.NewString(),
		DisplayName: sig.RawTitle,
		Category:    classify.Unclassified,
		Aliases:     map[string]struct{}{sig.RawTitle: {}},
		FirstSeen:   sig.ObservedAt,
		LastUpdated: sig.ObservedAt,
		Signals:     []source.Signal{sig},
	}
	if t.FirstSeen.IsZero() {
		t.FirstSeen = now
		t.LastUpdated = now
	}

	r.Classify(ctx, t)
	return t
}

// Classify assigns a category to a topic via the external collaborator.
// Failure is non-fatal: the topic stays unclassified and is retried on a
// later cycle.
func (r *Resolver) Classify(ctx context.Context, t *Topic) {
	if r.classifier == nil {
		return
	}
	cat, err := r.classifier.Classify(ctx, t.DisplayName)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", t.DisplayName).Msg("category validation failed")
		return
	}
	if cat != "" {
		t.Category = cat
	}
}

// topicSimilarity scores a signal title against a topic's display name and
// aliases, keeping the best match.
func (r *Resolver) topicSimilarity(t *Topic, sigTokens []string, sigNorm string) float64 {
	best := titleSimilarity(sigTokens, sigNorm, t.DisplayName)
	for alias := range t.Aliases {
		if alias == t.DisplayName {
			continue
		}
		if sim := titleSimilarity(sigTokens, sigNorm, alias); sim > best {
			best = sim
		}
	}
	return best
}

func titleSimilarity(aTokens []string, aNorm, b string) float64 {
	jac := jaccardSimilarity(aTokens, significantTokens(b))
	lev := editSimilarity(aNorm, source.NormalizeTitle(b))
	if jac > lev {
		return jac
	}
	return lev
}

// stopwords excluded from token comparison.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "i": true, "we": true, "you": true,
	"he": true, "she": true, "they": true, "my": true, "your": true,
	"how": true, "what": true, "when": true, "where": true, "why": true,
	"not": true, "no": true, "new": true, "just": true, "about": true,
	"up": true, "out": true, "if": true, "so": true, "can": true,
	"all": true, "more": true, "also": true, "than": true, "very": true,
}

// significantTokens extracts meaningful words from a title.
func significantTokens(title string) []string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, w := range words {
		if len(w) >= 2 && !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// jaccardSimilarity returns the Jaccard index of two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool)
	for _, t := range a {
		setA[t] = true
	}

	setB := make(map[string]bool)
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}

	unionSize := len(setA) + len(setB) - intersection
	if unionSize == 0 {
		return 0
	}
	return float64(intersection) / float64(unionSize)
}

// editSimilarity is 1 - normalized Levenshtein distance. Catches
// near-identical titles whose token sets diverge (typos, hyphenation).
func editSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
