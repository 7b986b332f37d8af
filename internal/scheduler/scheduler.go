package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jwheaton/trendwatch/internal/store"
	"github.com/jwheaton/trendwatch/pkg/alert"
	"github.com/jwheaton/trendwatch/pkg/engine"
	"github.com/jwheaton/trendwatch/pkg/source"
)

// Scheduler drives periodic ingestion-to-alert cycles: collect from all
// sources, hand the batch to the engine, commit at the cycle boundary,
// then notify.
type Scheduler struct {
	store      store.Store
	collectors []source.Collector
	engine     *engine.Engine
	alertMgr   *alert.Manager
	interval   time.Duration
	log        zerolog.Logger
}

// New creates a new scheduler.
func New(
	s store.Store,
	collectors []source.Collector,
	eng *engine.Engine,
	alertMgr *alert.Manager,
	interval time.Duration,
	log zerolog.Logger,
) *Scheduler {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		store:      s,
		collectors: collectors,
		engine:     eng,
		alertMgr:   alertMgr,
		interval:   interval,
		log:        log,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single collect-ingest-score-commit-notify cycle.
func (s *Scheduler) RunOnce(ctx context.Context) {
	batch := s.collect(ctx)

	if err := s.engine.Ingest(batch); err != nil {
		// Partial batches are accepted; the engine already flagged the
		// failing sources.
		s.log.Warn().Err(err).Msg("partial ingest")
	}

	result, err := s.engine.RunCycle(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("cycle failed")
		return
	}

	// Persistence failure aborts only the commit; the engine keeps its
	// in-memory state and the store keeps the previous committed state.
	// The next cycle retries.
	if err := s.store.CommitCycle(ctx, s.engine.ExportState(), result.Scores, result.Alerts); err != nil {
		s.log.Error().Err(err).Msg("cycle commit failed, retaining previous committed state")
	}

	s.notify(ctx, result.Alerts)
}

// collect fans out to all collectors concurrently and returns the merged
// batch. A failing source is marked as a data gap for this cycle, never
// fatal.
func (s *Scheduler) collect(ctx context.Context) []source.Signal {
	var (
		mu    sync.Mutex
		batch []source.Signal
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.collectors {
		g.Go(func() error {
			signals, err := c.Collect(gctx)
			if err != nil {
				s.log.Warn().Err(err).Str("source", string(c.Name())).Msg("collection failed")
				s.engine.MarkSourceGap(c.Name())
				return nil
			}
			mu.Lock()
			batch = append(batch, signals...)
			mu.Unlock()
			s.log.Debug().Str("source", string(c.Name())).Int("signals", len(signals)).Msg("collected")
			return nil
		})
	}
	g.Wait()

	s.log.Info().Int("signals", len(batch)).Msg("collection complete")
	return batch
}

func (s *Scheduler) notify(ctx context.Context, alerts []engine.AlertEvent) {
	if len(alerts) == 0 || !s.alertMgr.HasNotifiers() {
		return
	}

	snap := s.engine.Snapshot()
	views := make(map[string]*engine.TopicView, len(snap.Topics))
	for i := range snap.Topics {
		views[snap.Topics[i].ID] = &snap.Topics[i]
	}

	for _, ev := range alerts {
		n := &alert.Notification{
			TopicID:     ev.TopicID,
			Topic:       ev.TopicID,
			Composite:   ev.Composite,
			Reason:      ev.Reason,
			TriggeredAt: ev.TriggeredAt.Format(time.RFC3339),
		}
		if view, ok := views[ev.TopicID]; ok {
			n.Topic = view.DisplayName
			n.Category = view.Category
			for _, src := range view.Sources {
				n.Sources = append(n.Sources, string(src))
			}
		}

		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			// Delivery is retried by the notifier side, never by
			// re-scoring; the recorded AlertEvent stands.
			s.log.Warn().Err(err).Str("topic", n.Topic).Msg("alert delivery failed")
			continue
		}
		s.log.Info().Str("topic", n.Topic).Float64("composite", ev.Composite).Msg("alert delivered")
	}
}
