package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

type fakeClock struct {
	now  time.Time
	step time.Duration // advance per Now() call, usually 0
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T, cfg Config, clock Clock) *Engine {
	t.Helper()
	e, err := New(cfg, WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func multiSourceBatch(title string, at time.Time) []source.Signal {
	var batch []source.Signal
	for _, src := range []source.SourceID{source.SourceNews, source.SourceTrends, source.SourceTwitter} {
		batch = append(batch, source.Signal{
			SourceID:   src,
			RawTitle:   title,
			Metrics:    map[string]float64{source.MetricEngagement: 80},
			ObservedAt: at,
		})
	}
	return batch
}

func TestIngestRejectsMalformedSourceAsGroup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)

	batch := []source.Signal{
		{SourceID: source.SourceNews, RawTitle: "Nvidia Earnings", ObservedAt: clock.now},
		{SourceID: source.SourceTwitter, RawTitle: "", ObservedAt: clock.now},
		{SourceID: source.SourceTwitter, RawTitle: "valid but same source", ObservedAt: clock.now},
	}

	err := e.Ingest(batch)
	var ingErr *IngestionError
	if !errors.As(err, &ingErr) {
		t.Fatalf("Ingest = %v, want *IngestionError", err)
	}
	if _, ok := ingErr.Sources[source.SourceTwitter]; !ok {
		t.Errorf("rejected sources = %v, want twitter", ingErr.Sources)
	}
	if _, ok := ingErr.Sources[source.SourceNews]; ok {
		t.Error("news source rejected despite valid signals")
	}

	// The valid source's signals still went through.
	res, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(res.Scores) != 1 {
		t.Errorf("got %d scores, want 1 from the accepted source", len(res.Scores))
	}
}

func TestIngestDeduplicatesByIdentityKey(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	sig := source.Signal{
		SourceID:   source.SourceNews,
		RawTitle:   "Nvidia Earnings Beat",
		Metrics:    map[string]float64{source.MetricEngagement: 50},
		ObservedAt: clock.now,
	}

	// Same signal twice in one batch, and again after a cycle.
	if err := e.Ingest([]source.Signal{sig, sig}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if err := e.Ingest([]source.Signal{sig}); err != nil {
		t.Fatalf("re-Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	snap := e.Snapshot()
	if len(snap.Topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(snap.Topics))
	}
	if snap.Topics[0].SignalCount != 1 {
		t.Errorf("topic has %d signals, want 1 after dedup", snap.Topics[0].SignalCount)
	}
}

func TestRunCycleMergesAcrossSourcesAndAlerts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertThreshold = 50
	cfg.RisingThreshold = 30

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, cfg, clock)
	ctx := context.Background()

	if err := e.Ingest(multiSourceBatch("Nvidia Q2 Earnings", clock.now)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(res.Scores) != 1 {
		t.Fatalf("got %d scores, want 1 merged topic", len(res.Scores))
	}

	sc := res.Scores[0]
	if sc.Composite < cfg.AlertThreshold {
		t.Errorf("composite = %v, want >= %v for 3 corroborating sources", sc.Composite, cfg.AlertThreshold)
	}
	if !sc.LowConfidence {
		t.Error("score should be low-confidence with cold baselines")
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(res.Alerts))
	}
	if res.Alerts[0].TopicID != sc.TopicID {
		t.Errorf("alert topic %s does not match score topic %s", res.Alerts[0].TopicID, sc.TopicID)
	}

	// Still trending on the next cycle: cooldown keeps it silent.
	clock.Advance(15 * time.Minute)
	res2, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if len(res2.Alerts) != 0 {
		t.Errorf("got %d alerts during cooldown, want 0", len(res2.Alerts))
	}
}

func TestRunCycleDataGapCarriesScore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	if err := e.Ingest([]source.Signal{{
		SourceID:   source.SourceNews,
		RawTitle:   "Nvidia Earnings",
		Metrics:    map[string]float64{source.MetricEngagement: 50},
		ObservedAt: clock.now,
	}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	res1, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// The topic's only source fails next cycle: no rescoring on silence.
	clock.Advance(15 * time.Minute)
	e.MarkSourceGap(source.SourceNews)

	res2, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if len(res2.Scores) != 1 {
		t.Fatalf("got %d scores, want 1 carried forward", len(res2.Scores))
	}
	carried := res2.Scores[0]
	if !carried.DataGap {
		t.Error("carried score should be flagged as a data gap")
	}
	if carried.Composite != res1.Scores[0].Composite {
		t.Errorf("carried composite = %v, want previous %v", carried.Composite, res1.Scores[0].Composite)
	}

	// Gap flags reset: the following cycle rescores normally.
	clock.Advance(15 * time.Minute)
	res3, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("third RunCycle: %v", err)
	}
	if len(res3.Scores) != 1 || res3.Scores[0].DataGap {
		t.Errorf("scores after gap cleared = %+v, want fresh score", res3.Scores)
	}
}

func TestDataGapOnlyAffectsGappedTopics(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	if err := e.Ingest([]source.Signal{
		{SourceID: source.SourceNews, RawTitle: "Nvidia Earnings", ObservedAt: clock.now},
		{SourceID: source.SourceTrends, RawTitle: "Taylor Swift Tour", ObservedAt: clock.now},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// News fails this cycle; the trends-backed topic keeps updating.
	clock.Advance(15 * time.Minute)
	e.MarkSourceGap(source.SourceNews)
	if err := e.Ingest([]source.Signal{
		{SourceID: source.SourceTrends, RawTitle: "Taylor Swift Tour", ObservedAt: clock.now},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(res.Scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(res.Scores))
	}

	snap := e.Snapshot()
	for _, tv := range snap.Topics {
		switch tv.DisplayName {
		case "Nvidia Earnings":
			if tv.Score == nil || !tv.Score.DataGap {
				t.Errorf("news-only topic score = %+v, want carried with data gap", tv.Score)
			}
		case "Taylor Swift Tour":
			if tv.Score == nil || tv.Score.DataGap {
				t.Errorf("trends topic score = %+v, want fresh", tv.Score)
			}
		default:
			t.Errorf("unexpected topic %q", tv.DisplayName)
		}
	}
}

func TestRunCycleBudgetCarriesStaleScores(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleBudget = time.Millisecond

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, cfg, clock)
	ctx := context.Background()

	if err := e.Ingest(multiSourceBatch("Nvidia Q2 Earnings", clock.now)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Every clock read now jumps past the budget deadline.
	clock.step = time.Second
	res, err := e.RunCycle(ctx)
	if err != nil {
		t.Fatalf("budgeted RunCycle: %v", err)
	}
	if res.StaleTopics != 1 {
		t.Errorf("stale topics = %d, want 1", res.StaleTopics)
	}
	if len(res.Scores) != 1 || !res.Scores[0].Stale {
		t.Errorf("scores = %+v, want previous score carried forward as stale", res.Scores)
	}
}

func TestSnapshotExcludesAgedOutTopics(t *testing.T) {
	cfg := DefaultConfig()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, cfg, clock)
	ctx := context.Background()

	if err := e.Ingest([]source.Signal{{
		SourceID:   source.SourceNews,
		RawTitle:   "Nvidia Earnings",
		ObservedAt: clock.now,
	}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if snap := e.Snapshot(); len(snap.Topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(snap.Topics))
	}

	clock.Advance(cfg.RetentionHorizon + time.Hour)
	if snap := e.Snapshot(); len(snap.Topics) != 0 {
		t.Errorf("got %d topics beyond the retention horizon, want 0", len(snap.Topics))
	}
}

func TestSnapshotOrderedByComposite(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	batch := multiSourceBatch("Nvidia Q2 Earnings", clock.now)
	batch = append(batch, source.Signal{
		SourceID:   source.SourceRSS,
		RawTitle:   "Obscure Local Festival",
		ObservedAt: clock.now,
	})
	if err := e.Ingest(batch); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	snap := e.Snapshot()
	if len(snap.Topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(snap.Topics))
	}
	for i := 1; i < len(snap.Topics); i++ {
		a, b := snap.Topics[i-1].Score, snap.Topics[i].Score
		if a == nil || b == nil {
			t.Fatal("snapshot topics missing scores")
		}
		if a.Composite < b.Composite {
			t.Errorf("snapshot not sorted: %v before %v", a.Composite, b.Composite)
		}
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e1 := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	sig := source.Signal{
		SourceID:   source.SourceNews,
		RawTitle:   "Nvidia Earnings",
		Metrics:    map[string]float64{source.MetricEngagement: 50},
		ObservedAt: clock.now,
	}
	if err := e1.Ingest([]source.Signal{sig}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e1.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	st := e1.ExportState()

	e2 := newTestEngine(t, DefaultConfig(), &fakeClock{now: clock.now})
	e2.RestoreState(st)

	s1, s2 := e1.Snapshot(), e2.Snapshot()
	if len(s2.Topics) != len(s1.Topics) {
		t.Fatalf("restored %d topics, want %d", len(s2.Topics), len(s1.Topics))
	}
	if s2.Topics[0].ID != s1.Topics[0].ID {
		t.Errorf("restored topic %s, want %s", s2.Topics[0].ID, s1.Topics[0].ID)
	}
	if s2.Topics[0].Score == nil || s2.Topics[0].Score.Composite != s1.Topics[0].Score.Composite {
		t.Errorf("restored score %+v, want %+v", s2.Topics[0].Score, s1.Topics[0].Score)
	}

	// Identity keys were rebuilt: re-ingesting the same signal is a no-op.
	if err := e2.Ingest([]source.Signal{sig}); err != nil {
		t.Fatalf("re-Ingest: %v", err)
	}
	if _, err := e2.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if snap := e2.Snapshot(); snap.Topics[0].SignalCount != 1 {
		t.Errorf("restored topic has %d signals, want 1 after dedup", snap.Topics[0].SignalCount)
	}
}

func TestExportStateIsDeepCopy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, DefaultConfig(), clock)
	ctx := context.Background()

	if err := e.Ingest([]source.Signal{{
		SourceID:   source.SourceNews,
		RawTitle:   "Nvidia Earnings",
		ObservedAt: clock.now,
	}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := e.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	st := e.ExportState()
	st.Topics[0].DisplayName = "mutated"
	st.Topics[0].Signals = nil

	snap := e.Snapshot()
	if snap.Topics[0].DisplayName == "mutated" {
		t.Error("mutating exported state leaked into the engine")
	}
	if snap.Topics[0].SignalCount != 1 {
		t.Errorf("engine lost signals after exported copy was mutated")
	}
}
