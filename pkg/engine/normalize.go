package engine

import "github.com/jwheaton/trendwatch/pkg/source"

const baselineWindow = 256

type baselineKey struct {
	Source source.SourceID
	Metric string
}

// baseline keeps a rolling sample window of raw values for one
// source/metric pair. Min/max over the window define the [0,1] mapping.
type baseline struct {
	samples []float64
	next    int
	full    bool
}

func (b *baseline) observe(v float64) {
	if len(b.samples) < baselineWindow {
		b.samples = append(b.samples, v)
		return
	}
	b.samples[b.next] = v
	b.next = (b.next + 1) % baselineWindow
	b.full = true
}

func (b *baseline) count() int { return len(b.samples) }

func (b *baseline) bounds() (min, max float64) {
	min, max = b.samples[0], b.samples[0]
	for _, v := range b.samples[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Normalizer rescales raw per-source metrics onto [0,1] using rolling
// baselines. With insufficient history it returns a neutral 0.5 flagged as
// low-confidence. It never errors on missing metrics; callers treat an
// absent metric as zero contribution.
type Normalizer struct {
	minSamples int
	baselines  map[baselineKey]*baseline
}

// NewNormalizer creates a normalizer requiring minSamples observations per
// source/metric pair before trusting the baseline.
func NewNormalizer(minSamples int) *Normalizer {
	return &Normalizer{
		minSamples: minSamples,
		baselines:  make(map[baselineKey]*baseline),
	}
}

// Observe feeds a signal's raw metric values into the rolling baselines.
// Called once per newly ingested signal, before scoring.
func (n *Normalizer) Observe(sig source.Signal) {
	for metric, raw := range sig.Metrics {
		key := baselineKey{Source: sig.SourceID, Metric: metric}
		b := n.baselines[key]
		if b == nil {
			b = &baseline{}
			n.baselines[key] = b
		}
		b.observe(raw)
	}
}

// Normalize maps a raw value to [0,1] against the source/metric baseline.
// The second return is true when the result is low-confidence.
func (n *Normalizer) Normalize(src source.SourceID, metric string, raw float64) (float64, bool) {
	b := n.baselines[baselineKey{Source: src, Metric: metric}]
	if b == nil || b.count() < n.minSamples {
		return 0.5, true
	}

	min, max := b.bounds()
	if max <= min {
		// Degenerate baseline: every observation identical.
		return 0.5, true
	}

	v := (raw - min) / (max - min)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, false
}

// SampleCount reports how much history a source/metric baseline holds.
func (n *Normalizer) SampleCount(src source.SourceID, metric string) int {
	b := n.baselines[baselineKey{Source: src, Metric: metric}]
	if b == nil {
		return 0
	}
	return b.count()
}
