package engine

import (
	"math"
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

// Scorer combines normalized sub-scores into the composite 0-100 trend
// score. Deterministic and monotonic non-decreasing in every sub-score, so
// alerting behaves predictably.
type Scorer struct {
	weights   Weights
	authority map[source.SourceID]float64
	windows   []time.Duration
	typical   float64
	norm      *Normalizer
}

// NewScorer creates a scorer over the given normalizer.
func NewScorer(cfg Config, norm *Normalizer) *Scorer {
	return &Scorer{
		weights:   cfg.Weights,
		authority: cfg.AuthorityWeights,
		windows:   cfg.Windows,
		typical:   cfg.TypicalGrowth,
		norm:      norm,
	}
}

// Score computes a fresh TrendScore for a topic at the given instant.
func (s *Scorer) Score(t *Topic, now time.Time) TrendScore {
	stats := WindowStats(t, s.windows, now)
	activeStart := now.Add(-s.windows[len(s.windows)-1])

	diversity := s.diversityScore(t, activeStart, now)
	engagement, lowConf := s.engagementScore(t, activeStart, now)
	velocity := velocityScore(growthRate(t, stats, now), s.typical)
	authority := s.authorityScore(t, activeStart, now)

	return TrendScore{
		TopicID:       t.ID,
		ComputedAt:    now,
		Diversity:     diversity,
		Engagement:    engagement,
		Velocity:      velocity,
		Authority:     authority,
		Composite:     s.composite(diversity, engagement, velocity, authority),
		LowConfidence: lowConf,
	}
}

func (s *Scorer) composite(diversity, engagement, velocity, authority float64) float64 {
	c := s.weights.Diversity*diversity +
		s.weights.Engagement*engagement +
		s.weights.Velocity*velocity +
		s.weights.Authority*authority
	return clip(c)
}

// diversityScore grows with the number of distinct contributing sources
// and saturates: corroboration beyond three or four platforms adds little
// marginal evidence.
func (s *Scorer) diversityScore(t *Topic, from, to time.Time) float64 {
	seen := make(map[source.SourceID]struct{})
	for _, sig := range t.Signals {
		if inWindow(sig.ObservedAt, from, to) {
			seen[sig.SourceID] = struct{}{}
		}
	}
	k := len(seen)
	if k == 0 {
		return 0
	}
	return clip(100 * (1 - math.Pow(0.55, float64(k))))
}

// engagementScore aggregates normalized engagement across the topic's
// in-window signals, weighted by source authority. Signals with no metrics
// contribute zero; silence is not rewarded.
func (s *Scorer) engagementScore(t *Topic, from, to time.Time) (float64, bool) {
	var weightedSum, weightSum float64
	lowConf := false
	n := 0

	for _, sig := range t.Signals {
		if !inWindow(sig.ObservedAt, from, to) {
			continue
		}
		n++

		v := 0.0
		if len(sig.Metrics) > 0 {
			var sum float64
			for metric, raw := range sig.Metrics {
				nv, lc := s.norm.Normalize(sig.SourceID, metric, raw)
				sum += nv
				if lc {
					lowConf = true
				}
			}
			v = sum / float64(len(sig.Metrics))
		}

		w := s.sourceAuthority(sig.SourceID)
		weightedSum += w * v
		weightSum += w
	}

	if n == 0 || weightSum == 0 {
		return 0, lowConf
	}
	return clip(100 * weightedSum / weightSum), lowConf
}

// authorityScore is the mean authority of contributing sources relative to
// the most authoritative configured source.
func (s *Scorer) authorityScore(t *Topic, from, to time.Time) float64 {
	maxW := 0.0
	for _, w := range s.authority {
		if w > maxW {
			maxW = w
		}
	}
	if maxW == 0 {
		return 0
	}

	var sum float64
	n := 0
	for _, sig := range t.Signals {
		if !inWindow(sig.ObservedAt, from, to) {
			continue
		}
		sum += s.sourceAuthority(sig.SourceID)
		n++
	}
	if n == 0 {
		return 0
	}
	return clip(100 * sum / float64(n) / maxW)
}

func (s *Scorer) sourceAuthority(id source.SourceID) float64 {
	if w, ok := s.authority[id]; ok {
		return w
	}
	// Unknown sources get the weakest configured authority.
	minW := math.Inf(1)
	for _, w := range s.authority {
		if w < minW {
			minW = w
		}
	}
	return minW
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
