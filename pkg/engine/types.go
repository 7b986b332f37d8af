// Package engine is the trend scoring and aggregation core: it resolves
// raw per-source signals into canonical topics, tracks momentum over time
// windows, computes composite 0-100 scores, and decides when to alert.
package engine

import (
	"sort"
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

// Topic is a canonical, deduplicated real-world subject aggregating
// signals from multiple sources. Owned exclusively by the engine; external
// readers get copies via Snapshot.
type Topic struct {
	ID          string              `json:"id"`
	DisplayName string              `json:"display_name"`
	Category    string              `json:"category"`
	Aliases     map[string]struct{} `json:"-"`
	FirstSeen   time.Time           `json:"first_seen"`
	LastUpdated time.Time           `json:"last_updated"`
	Signals     []source.Signal     `json:"signals"`
}

// AliasList returns the topic's aliases in sorted order.
func (t *Topic) AliasList() []string {
	out := make([]string, 0, len(t.Aliases))
	for a := range t.Aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// AddAlias records a raw title as an alias if novel.
func (t *Topic) AddAlias(raw string) {
	if t.Aliases == nil {
		t.Aliases = make(map[string]struct{})
	}
	t.Aliases[raw] = struct{}{}
}

// SourceSet returns the distinct sources that have contributed signals.
func (t *Topic) SourceSet() map[source.SourceID]struct{} {
	set := make(map[source.SourceID]struct{})
	for _, sig := range t.Signals {
		set[sig.SourceID] = struct{}{}
	}
	return set
}

func (t *Topic) clone() Topic {
	cp := *t
	cp.Aliases = make(map[string]struct{}, len(t.Aliases))
	for a := range t.Aliases {
		cp.Aliases[a] = struct{}{}
	}
	cp.Signals = append([]source.Signal(nil), t.Signals...)
	return cp
}

// WindowStat is a per-topic, per-window aggregate, recomputed from the
// topic's signal history each cycle.
type WindowStat struct {
	Window        time.Duration `json:"window"`
	SignalCount   int           `json:"signal_count"`
	EngagementSum float64       `json:"engagement_sum"`
	IntervalStart time.Time     `json:"interval_start"`
}

// TrendScore is a snapshot of a topic's sub-scores and composite. All
// values lie in [0,100].
type TrendScore struct {
	TopicID       string    `json:"topic_id" db:"topic_id"`
	ComputedAt    time.Time `json:"computed_at" db:"computed_at"`
	Diversity     float64   `json:"diversity" db:"diversity"`
	Engagement    float64   `json:"engagement" db:"engagement"`
	Velocity      float64   `json:"velocity" db:"velocity"`
	Authority     float64   `json:"authority" db:"authority"`
	Composite     float64   `json:"composite" db:"composite"`
	LowConfidence bool      `json:"low_confidence" db:"low_confidence"`
	Stale         bool      `json:"stale" db:"stale"`
	DataGap       bool      `json:"data_gap" db:"data_gap"`
}

// AlertEvent records a threshold crossing. Append-only; later events for
// the same topic supersede, never mutate, earlier ones.
type AlertEvent struct {
	ID          string    `json:"id" db:"id"`
	TopicID     string    `json:"topic_id" db:"topic_id"`
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	Composite   float64   `json:"composite" db:"composite"`
	Reason      string    `json:"reason" db:"reason"`
}

// CycleResult is what one ingestion-to-alert cycle produced.
type CycleResult struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Scores      []TrendScore `json:"scores"`
	Alerts      []AlertEvent `json:"alerts"`
	StaleTopics int          `json:"stale_topics"`
}

// TopicView is a read-only projection of a topic for dashboards and
// persistence.
type TopicView struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category"`
	Aliases     []string          `json:"aliases"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastUpdated time.Time         `json:"last_updated"`
	SignalCount int               `json:"signal_count"`
	Sources     []source.SourceID `json:"sources"`
	Score       *TrendScore       `json:"score,omitempty"`
	Phase       AlertPhase        `json:"phase"`
}

// Snapshot is a read-only view of all active topics taken at a cycle
// boundary.
type Snapshot struct {
	TakenAt time.Time   `json:"taken_at"`
	Topics  []TopicView `json:"topics"`
}

// State is the persistable engine state exchanged with the storage
// collaborator at cycle boundaries.
type State struct {
	Topics      []Topic
	AlertStates map[string]AlertState
	LastScores  map[string]TrendScore
}
