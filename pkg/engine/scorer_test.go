package engine

import (
	"testing"
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

func seedBaselines(n *Normalizer, src source.SourceID, values ...float64) {
	for _, v := range values {
		n.Observe(source.Signal{
			SourceID: src,
			RawTitle: "seed",
			Metrics:  map[string]float64{source.MetricEngagement: v},
		})
	}
}

func TestScoreBounds(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	topics := []*Topic{
		topicWithSignals(now, now),
		topicWithSignals(now.Add(-48*time.Hour), now.Add(-30*time.Hour), now.Add(-time.Hour)),
		{ID: "empty", DisplayName: "no signals", FirstSeen: now.Add(-time.Hour), LastUpdated: now.Add(-time.Hour)},
	}

	s := NewScorer(cfg, NewNormalizer(cfg.BaselineMinSamples))
	for _, topic := range topics {
		sc := s.Score(topic, now)
		for name, v := range map[string]float64{
			"diversity":  sc.Diversity,
			"engagement": sc.Engagement,
			"velocity":   sc.Velocity,
			"authority":  sc.Authority,
			"composite":  sc.Composite,
		} {
			if v < 0 || v > 100 {
				t.Errorf("topic %s: %s = %v, want in [0,100]", topic.ID, name, v)
			}
		}
	}
}

func TestDiversityScoreSaturates(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer(cfg, NewNormalizer(cfg.BaselineMinSamples))

	allSources := []source.SourceID{
		source.SourceTrends, source.SourceNews, source.SourceSearch,
		source.SourceYouTube, source.SourceTwitter, source.SourceRSS,
	}

	prev := 0.0
	prevGain := 101.0
	for k := 1; k <= len(allSources); k++ {
		topic := &Topic{ID: "t", DisplayName: "x", FirstSeen: now.Add(-time.Hour), LastUpdated: now}
		for _, src := range allSources[:k] {
			topic.Signals = append(topic.Signals, source.Signal{
				SourceID: src, RawTitle: "x", ObservedAt: now,
			})
		}

		d := s.diversityScore(topic, now.Add(-24*time.Hour), now)
		if d <= prev {
			t.Errorf("diversity with %d sources = %v, want > %v", k, d, prev)
		}
		gain := d - prev
		if gain >= prevGain {
			t.Errorf("diversity gain at %d sources = %v, want diminishing (< %v)", k, gain, prevGain)
		}
		prev, prevGain = d, gain
	}
}

func TestEngagementScoreLowConfidence(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	norm := NewNormalizer(cfg.BaselineMinSamples)
	s := NewScorer(cfg, norm)

	topic := topicWithSignals(now.Add(-time.Hour), now)
	topic.Signals[0].Metrics = map[string]float64{source.MetricEngagement: 80}

	// No baseline history yet: the neutral fallback must be flagged.
	_, lowConf := s.engagementScore(topic, now.Add(-24*time.Hour), now)
	if !lowConf {
		t.Error("engagement with no baseline should be low-confidence")
	}

	seedBaselines(norm, source.SourceNews, 0, 20, 40, 60, 100)
	eng, lowConf := s.engagementScore(topic, now.Add(-24*time.Hour), now)
	if lowConf {
		t.Error("engagement with full baseline should not be low-confidence")
	}
	if eng != 80 {
		t.Errorf("engagement = %v, want 80 (raw 80 against [0,100] baseline)", eng)
	}
}

func TestEngagementAbsentMetricsContributeZero(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	norm := NewNormalizer(1)
	seedBaselines(norm, source.SourceNews, 0, 100)
	s := NewScorer(cfg, norm)

	withMetrics := topicWithSignals(now.Add(-time.Hour), now)
	withMetrics.Signals[0].Metrics = map[string]float64{source.MetricEngagement: 100}

	noMetrics := topicWithSignals(now.Add(-time.Hour), now)
	noMetrics.Signals[0].Metrics = nil

	hi, _ := s.engagementScore(withMetrics, now.Add(-24*time.Hour), now)
	lo, _ := s.engagementScore(noMetrics, now.Add(-24*time.Hour), now)

	if lo != 0 {
		t.Errorf("engagement with no metrics = %v, want 0", lo)
	}
	if hi <= lo {
		t.Errorf("engagement %v should exceed metric-free %v", hi, lo)
	}
}

func TestCompositeMonotonicInSubScores(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg, NewNormalizer(cfg.BaselineMinSamples))

	base := s.composite(40, 40, 40, 40)
	for _, bumped := range []float64{
		s.composite(60, 40, 40, 40),
		s.composite(40, 60, 40, 40),
		s.composite(40, 40, 60, 40),
		s.composite(40, 40, 40, 60),
	} {
		if bumped <= base {
			t.Errorf("composite %v not greater than base %v after raising a sub-score", bumped, base)
		}
	}
}

func TestScoreMultiSourceBeatsSingleSource(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	norm := NewNormalizer(1)
	for _, src := range []source.SourceID{source.SourceNews, source.SourceTrends, source.SourceTwitter} {
		seedBaselines(norm, src, 0, 100)
	}
	s := NewScorer(cfg, norm)

	firstSeen := now.Add(-30 * time.Hour)

	multi := &Topic{ID: "multi", DisplayName: "x", FirstSeen: firstSeen, LastUpdated: now}
	for _, src := range []source.SourceID{source.SourceNews, source.SourceTrends, source.SourceTwitter} {
		multi.Signals = append(multi.Signals, source.Signal{
			SourceID:   src,
			RawTitle:   "x",
			Metrics:    map[string]float64{source.MetricEngagement: 80},
			ObservedAt: now.Add(-time.Hour),
		})
	}

	single := &Topic{ID: "single", DisplayName: "y", FirstSeen: firstSeen, LastUpdated: now}
	single.Signals = append(single.Signals, source.Signal{
		SourceID:   source.SourceRSS,
		RawTitle:   "y",
		Metrics:    map[string]float64{source.MetricEngagement: 20},
		ObservedAt: now.Add(-time.Hour),
	})

	mc := s.Score(multi, now)
	sc := s.Score(single, now)

	if mc.Composite <= sc.Composite {
		t.Errorf("3-source high-engagement topic scored %v, below single-source %v", mc.Composite, sc.Composite)
	}
	if mc.Diversity <= sc.Diversity {
		t.Errorf("diversity %v should exceed single-source %v", mc.Diversity, sc.Diversity)
	}
}

func TestVelocityLiftsComposite(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer(cfg, NewNormalizer(cfg.BaselineMinSamples))

	// Same sources and signal count; only the timing differs. The rising
	// topic's recent rate is double its older rate, the flat topic's
	// rates are equal.
	rising := topicWithSignals(now.Add(-30*time.Hour),
		now.Add(-20*time.Hour),
		now.Add(-15*time.Hour),
		now.Add(-3*time.Hour),
		now.Add(-time.Hour),
	)
	flat := topicWithSignals(now.Add(-30*time.Hour),
		now.Add(-22*time.Hour),
		now.Add(-16*time.Hour),
		now.Add(-10*time.Hour),
		now.Add(-4*time.Hour),
	)

	rs, fs := s.Score(rising, now), s.Score(flat, now)

	if rs.Velocity <= 50 {
		t.Errorf("doubled-rate velocity = %v, want > 50", rs.Velocity)
	}
	if rs.Composite <= fs.Composite {
		t.Errorf("rising composite %v not above flat composite %v", rs.Composite, fs.Composite)
	}
}

func TestAuthorityScoreRelativeToStrongest(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer(cfg, NewNormalizer(cfg.BaselineMinSamples))

	newsOnly := topicWithSignals(now.Add(-time.Hour), now)
	if got := s.authorityScore(newsOnly, now.Add(-24*time.Hour), now); got != 100 {
		t.Errorf("authority for strongest source = %v, want 100", got)
	}

	weak := &Topic{ID: "w", FirstSeen: now.Add(-time.Hour), LastUpdated: now}
	weak.Signals = append(weak.Signals, source.Signal{
		SourceID: source.SourceYouTube, RawTitle: "w", ObservedAt: now,
	})
	if got := s.authorityScore(weak, now.Add(-24*time.Hour), now); got != 50 {
		t.Errorf("authority for weakest source = %v, want 50", got)
	}
}
