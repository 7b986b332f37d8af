package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwheaton/trendwatch/pkg/engine"
	"github.com/jwheaton/trendwatch/pkg/source"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testState(now time.Time) *engine.State {
	return &engine.State{
		Topics: []engine.Topic{{
			ID:          "topic-1",
			DisplayName: "Nvidia Earnings",
			Category:    "stocks_finance",
			Aliases:     map[string]struct{}{"Nvidia Earnings": {}, "NVDA earnings beat": {}},
			FirstSeen:   now.Add(-2 * time.Hour),
			LastUpdated: now,
			Signals: []source.Signal{{
				SourceID:   source.SourceNews,
				RawTitle:   "Nvidia Earnings",
				Metrics:    map[string]float64{source.MetricEngagement: 80},
				ObservedAt: now,
			}},
		}},
		AlertStates: map[string]engine.AlertState{
			"topic-1": {Phase: engine.PhaseAlerted, CooldownUntil: now.Add(6 * time.Hour)},
		},
		LastScores: map[string]engine.TrendScore{
			"topic-1": {TopicID: "topic-1", ComputedAt: now, Composite: 75.5, Velocity: 90},
		},
	}
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	st := testState(now)
	scores := []engine.TrendScore{st.LastScores["topic-1"]}
	alerts := []engine.AlertEvent{{
		ID:          "ev-1",
		TopicID:     "topic-1",
		TriggeredAt: now,
		Composite:   75.5,
		Reason:      "composite 75.5 crossed alert threshold 70.0",
	}}

	if err := s.CommitCycle(ctx, st, scores, alerts); err != nil {
		t.Fatalf("CommitCycle: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(loaded.Topics) != 1 {
		t.Fatalf("loaded %d topics, want 1", len(loaded.Topics))
	}
	topic := loaded.Topics[0]
	if topic.ID != "topic-1" || topic.DisplayName != "Nvidia Earnings" || topic.Category != "stocks_finance" {
		t.Errorf("loaded topic = %+v", topic)
	}
	if len(topic.Aliases) != 2 {
		t.Errorf("loaded %d aliases, want 2", len(topic.Aliases))
	}
	if len(topic.Signals) != 1 || topic.Signals[0].Metrics[source.MetricEngagement] != 80 {
		t.Errorf("loaded signals = %+v", topic.Signals)
	}

	as, ok := loaded.AlertStates["topic-1"]
	if !ok || as.Phase != engine.PhaseAlerted || as.CooldownUntil.IsZero() {
		t.Errorf("loaded alert state = %+v", as)
	}

	sc, ok := loaded.LastScores["topic-1"]
	if !ok || sc.Composite != 75.5 {
		t.Errorf("loaded score = %+v", sc)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := testStore(t)

	st, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Topics) != 0 || len(st.AlertStates) != 0 || len(st.LastScores) != 0 {
		t.Errorf("empty store loaded non-empty state: %+v", st)
	}
}

func TestLatestScoreWinsOnLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	st := testState(now)
	early := engine.TrendScore{TopicID: "topic-1", ComputedAt: now.Add(-time.Hour), Composite: 40}
	late := engine.TrendScore{TopicID: "topic-1", ComputedAt: now, Composite: 75.5}

	if err := s.CommitCycle(ctx, st, []engine.TrendScore{early}, nil); err != nil {
		t.Fatalf("CommitCycle: %v", err)
	}
	if err := s.CommitCycle(ctx, st, []engine.TrendScore{late}, nil); err != nil {
		t.Fatalf("CommitCycle: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.LastScores["topic-1"].Composite; got != 75.5 {
		t.Errorf("latest score composite = %v, want 75.5", got)
	}
}

func TestListAlertsNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	st := testState(now)
	alerts := []engine.AlertEvent{
		{ID: "ev-1", TopicID: "topic-1", TriggeredAt: now.Add(-2 * time.Hour), Composite: 71},
		{ID: "ev-2", TopicID: "topic-1", TriggeredAt: now, Composite: 80},
	}
	if err := s.CommitCycle(ctx, st, nil, alerts); err != nil {
		t.Fatalf("CommitCycle: %v", err)
	}

	got, err := s.ListAlerts(ctx, time.Time{}, 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2", len(got))
	}
	if got[0].ID != "ev-2" {
		t.Errorf("first alert = %s, want newest ev-2", got[0].ID)
	}

	since, err := s.ListAlerts(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListAlerts since: %v", err)
	}
	if len(since) != 1 || since[0].ID != "ev-2" {
		t.Errorf("since filter returned %+v, want only ev-2", since)
	}
}

func TestScoreHistoryOldestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	st := testState(now)
	scores := []engine.TrendScore{
		{TopicID: "topic-1", ComputedAt: now.Add(-time.Hour), Composite: 40},
		{TopicID: "topic-1", ComputedAt: now, Composite: 75.5},
	}
	if err := s.CommitCycle(ctx, st, scores, nil); err != nil {
		t.Fatalf("CommitCycle: %v", err)
	}

	got, err := s.ScoreHistory(ctx, "topic-1", time.Time{})
	if err != nil {
		t.Fatalf("ScoreHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d scores, want 2", len(got))
	}
	if got[0].Composite != 40 || got[1].Composite != 75.5 {
		t.Errorf("history order = %v then %v, want oldest first", got[0].Composite, got[1].Composite)
	}
}
