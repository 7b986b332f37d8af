package engine

import (
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

const growthEpsilon = 1e-9

// WindowStats recomputes per-window aggregates from the topic's full
// signal history. No incremental decay state is kept, so repeated
// recomputation cannot drift.
func WindowStats(t *Topic, windows []time.Duration, now time.Time) []WindowStat {
	stats := make([]WindowStat, len(windows))
	for i, w := range windows {
		start := now.Add(-w)
		st := WindowStat{Window: w, IntervalStart: start}
		for _, sig := range t.Signals {
			if sig.ObservedAt.Before(start) || sig.ObservedAt.After(now) {
				continue
			}
			st.SignalCount++
			st.EngagementSum += sig.Metrics[source.MetricEngagement]
		}
		stats[i] = st
	}
	return stats
}

// growthRate computes the clamped growth of the recent window's signal
// rate over the older window's. A topic younger than the older window has
// its older rate pro-rated over the available history instead of treated
// as zero, which would blow the ratio up.
func growthRate(t *Topic, stats []WindowStat, now time.Time) float64 {
	recent := stats[0]
	older := stats[len(stats)-1]

	recentHours := recent.Window.Hours()
	olderHours := older.Window.Hours()

	age := now.Sub(t.FirstSeen)
	if age < older.Window {
		// Cold start: pro-rate over what history exists. Floor at one
		// dedup bucket so a brand-new topic divides by something sane.
		if age < bucketFloor {
			age = bucketFloor
		}
		olderHours = age.Hours()
	}

	recentRate := float64(recent.SignalCount) / recentHours
	olderRate := float64(older.SignalCount) / olderHours

	g := (recentRate - olderRate) / maxFloat(olderRate, growthEpsilon)
	if olderRate <= growthEpsilon {
		// No meaningful base rate; any recent activity is flat growth
		// rather than infinite.
		if recentRate > 0 {
			g = 1
		} else {
			g = 0
		}
	}

	if g > 1 {
		g = 1
	}
	if g < -1 {
		g = -1
	}
	return g
}

// velocityScore maps clamped growth g in [-1,1] to [0,100] via an
// increasing, saturating linear rescale around the configured typical
// growth reference: g=0 is 50, g=+typical saturates at 100.
func velocityScore(g, typicalGrowth float64) float64 {
	v := 50 + 50*g/typicalGrowth
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return v
}

const bucketFloor = 15 * time.Minute

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
