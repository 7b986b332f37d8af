package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwheaton/trendwatch/pkg/classify"
	"github.com/jwheaton/trendwatch/pkg/source"
)

// Engine orchestrates one ingestion-to-alert cycle. It owns the topic
// store; external callers (scheduler, dashboard, notifier, persistence)
// interact only through Ingest, RunCycle, Snapshot and the State
// export/restore used at cycle boundaries.
type Engine struct {
	cfg Config
	log zerolog.Logger

	clock      Clock
	classifier classify.Classifier
	norm       *Normalizer
	resolver   *Resolver
	scorer     *Scorer
	emitter    *Emitter

	mu      sync.Mutex
	topics  map[string]*Topic
	seen    map[string]string // signal identity key -> topic ID ("" = pending)
	pending []source.Signal
	gapped  map[source.SourceID]bool
	alerts  map[string]*AlertState
	last    map[string]TrendScore
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithClock injects a time source. Tests use this for deterministic
// cooldown and retention behavior.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClassifier sets the external category-validation collaborator.
func WithClassifier(c classify.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// New creates an engine. Returns a ConfigError if the configuration is
// invalid; the engine refuses to run rather than score with broken
// weights.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		log:    zerolog.Nop(),
		clock:  realClock{},
		topics: make(map[string]*Topic),
		seen:   make(map[string]string),
		gapped: make(map[source.SourceID]bool),
		alerts: make(map[string]*AlertState),
		last:   make(map[string]TrendScore),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.norm = NewNormalizer(cfg.BaselineMinSamples)
	e.resolver = NewResolver(cfg.SimilarityThreshold, cfg.AmbiguityMargin, e.classifier, e.log)
	e.scorer = NewScorer(cfg, e.norm)
	e.emitter = NewEmitter(cfg.RisingThreshold, cfg.AlertThreshold, cfg.CooldownDuration)
	return e, nil
}

// Ingest accepts a batch of signals for the next cycle. Signals from a
// malformed source are rejected as a group and reported in the returned
// IngestionError; the remaining sources are accepted. Duplicate identity
// keys are dropped silently.
func (e *Engine) Ingest(signals []source.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rejected := make(map[source.SourceID]string)

	// A source with any malformed signal is skipped whole for the cycle.
	for _, sig := range signals {
		if reason := validateSignal(sig); reason != "" {
			if _, dup := rejected[sig.SourceID]; !dup {
				rejected[sig.SourceID] = reason
			}
		}
	}

	accepted := 0
	for _, sig := range signals {
		if _, bad := rejected[sig.SourceID]; bad {
			continue
		}
		key := sig.Key()
		if _, dup := e.seen[key]; dup {
			continue
		}
		e.seen[key] = ""
		e.pending = append(e.pending, sig)
		accepted++
	}

	e.log.Debug().
		Int("accepted", accepted).
		Int("rejected_sources", len(rejected)).
		Msg("ingested signal batch")

	if len(rejected) > 0 {
		for id := range rejected {
			e.gapped[id] = true
		}
		return &IngestionError{Sources: rejected}
	}
	return nil
}

func validateSignal(sig source.Signal) string {
	switch {
	case sig.SourceID == "":
		return "missing source id"
	case sig.RawTitle == "":
		return "empty title"
	case sig.ObservedAt.IsZero():
		return "missing observation time"
	default:
		return ""
	}
}

// MarkSourceGap flags a source as absent for the current cycle. Topics
// whose history depends on that source retain their previous score with a
// data-gap flag instead of being rescored on partial evidence.
func (e *Engine) MarkSourceGap(id source.SourceID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gapped[id] = true
}

// RunCycle drives one scoring cycle: resolve pending signals into topics,
// recompute window stats and scores, and evaluate alert transitions. Only
// one cycle is ever in flight. If the configured wall-clock budget runs
// out, topics not yet processed carry forward their previous score marked
// stale rather than getting a partial one.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.clock.Now()
	var deadline time.Time
	if e.cfg.CycleBudget > 0 {
		deadline = started.Add(e.cfg.CycleBudget)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	// Baselines first: every raw value observed this cycle informs
	// normalization before anything is scored.
	for _, sig := range e.pending {
		e.norm.Observe(sig)
	}

	active := e.activeSet(started)

	// Resolve pending signals into topics.
	fresh := make(map[string]bool)
	for _, sig := range e.pending {
		t, created := e.resolver.Resolve(ctx, e.topics, active, sig, started)
		if created {
			e.topics[t.ID] = t
			active[t.ID] = true
		}
		e.seen[sig.Key()] = t.ID
		fresh[t.ID] = true
	}
	e.pending = nil

	// Retry category validation for topics left unclassified by earlier
	// failures.
	for id := range active {
		t := e.topics[id]
		if t.Category == classify.Unclassified {
			e.resolver.Classify(ctx, t)
		}
	}

	e.pruneHistory(started)
	active = e.activeSet(started)

	// Deterministic processing order.
	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &CycleResult{StartedAt: started}

	for _, id := range ids {
		t := e.topics[id]

		if !deadline.IsZero() && e.clock.Now().After(deadline) {
			// Budget exhausted: carry the previous score forward, marked
			// stale, for this and all remaining topics.
			if prev, ok := e.last[id]; ok {
				prev.Stale = true
				result.Scores = append(result.Scores, prev)
				e.last[id] = prev
			}
			result.StaleTopics++
			continue
		}

		if !fresh[id] && e.topicGapped(t) {
			// The topic's sources failed this cycle; keep the prior score
			// and flag the gap rather than rescoring on silence.
			if prev, ok := e.last[id]; ok {
				prev.DataGap = true
				result.Scores = append(result.Scores, prev)
				e.last[id] = prev
			}
			continue
		}

		score := e.scorer.Score(t, started)
		e.last[id] = score
		result.Scores = append(result.Scores, score)

		st := e.alerts[id]
		if st == nil {
			st = &AlertState{Phase: PhaseQuiet}
			e.alerts[id] = st
		}
		if ev := e.emitter.Evaluate(id, score.Composite, st, started); ev != nil {
			result.Alerts = append(result.Alerts, *ev)
			e.log.Info().
				Str("topic", t.DisplayName).
				Float64("composite", score.Composite).
				Str("reason", ev.Reason).
				Msg("alert emitted")
		}
	}

	e.gapped = make(map[source.SourceID]bool)
	result.FinishedAt = e.clock.Now()

	e.log.Info().
		Int("topics", len(ids)).
		Int("scores", len(result.Scores)).
		Int("alerts", len(result.Alerts)).
		Int("stale", result.StaleTopics).
		Msg("cycle complete")

	return result, nil
}

// activeSet returns topic IDs with at least one signal inside the
// retention horizon. Topics are never deleted, only aged out of active
// consideration.
func (e *Engine) activeSet(now time.Time) map[string]bool {
	horizon := now.Add(-e.cfg.RetentionHorizon)
	active := make(map[string]bool)
	for id, t := range e.topics {
		if t.LastUpdated.After(horizon) {
			active[id] = true
		}
	}
	return active
}

// pruneHistory drops signals older than the retention horizon, and their
// identity keys, bounding memory without touching in-window history.
func (e *Engine) pruneHistory(now time.Time) {
	horizon := now.Add(-e.cfg.RetentionHorizon)
	for _, t := range e.topics {
		kept := t.Signals[:0]
		for _, sig := range t.Signals {
			if sig.ObservedAt.After(horizon) {
				kept = append(kept, sig)
				continue
			}
			delete(e.seen, sig.Key())
		}
		t.Signals = kept
	}
}

// topicGapped reports whether any of the topic's historical sources failed
// this cycle.
func (e *Engine) topicGapped(t *Topic) bool {
	if len(e.gapped) == 0 {
		return false
	}
	for src := range t.SourceSet() {
		if e.gapped[src] {
			return true
		}
	}
	return false
}

// Snapshot returns a read-only view of all active topics and their latest
// scores. Taken at a cycle boundary; never observes a cycle mid-flight.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	active := e.activeSet(now)

	snap := &Snapshot{TakenAt: now}
	for id := range active {
		t := e.topics[id]

		sources := make([]source.SourceID, 0, 4)
		for src := range t.SourceSet() {
			sources = append(sources, src)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

		view := TopicView{
			ID:          t.ID,
			DisplayName: t.DisplayName,
			Category:    t.Category,
			Aliases:     t.AliasList(),
			FirstSeen:   t.FirstSeen,
			LastUpdated: t.LastUpdated,
			SignalCount: len(t.Signals),
			Sources:     sources,
			Phase:       PhaseQuiet,
		}
		if score, ok := e.last[id]; ok {
			sc := score
			view.Score = &sc
		}
		if st, ok := e.alerts[id]; ok {
			view.Phase = st.Phase
		}
		snap.Topics = append(snap.Topics, view)
	}

	sort.Slice(snap.Topics, func(i, j int) bool {
		var a, b float64
		if snap.Topics[i].Score != nil {
			a = snap.Topics[i].Score.Composite
		}
		if snap.Topics[j].Score != nil {
			b = snap.Topics[j].Score.Composite
		}
		if a != b {
			return a > b
		}
		return snap.Topics[i].ID < snap.Topics[j].ID
	})

	return snap
}

// ExportState deep-copies the persistable engine state for the storage
// collaborator. Called at cycle boundaries.
func (e *Engine) ExportState() *State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &State{
		AlertStates: make(map[string]AlertState, len(e.alerts)),
		LastScores:  make(map[string]TrendScore, len(e.last)),
	}
	ids := make([]string, 0, len(e.topics))
	for id := range e.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st.Topics = append(st.Topics, e.topics[id].clone())
	}
	for id, as := range e.alerts {
		st.AlertStates[id] = *as
	}
	for id, sc := range e.last {
		st.LastScores[id] = sc
	}
	return st
}

// RestoreState loads previously committed state, typically once at
// startup. The store returning nothing means a first run on an empty
// store.
func (e *Engine) RestoreState(st *State) {
	if st == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range st.Topics {
		t := st.Topics[i].clone()
		if t.Aliases == nil {
			t.Aliases = map[string]struct{}{t.DisplayName: {}}
		}
		e.topics[t.ID] = &t
		for _, sig := range t.Signals {
			e.seen[sig.Key()] = t.ID
		}
		// Rebuild baselines from restored history so normalization does
		// not restart cold.
		for _, sig := range t.Signals {
			e.norm.Observe(sig)
		}
	}
	for id, as := range st.AlertStates {
		cp := as
		e.alerts[id] = &cp
	}
	for id, sc := range st.LastScores {
		e.last[id] = sc
	}
}
