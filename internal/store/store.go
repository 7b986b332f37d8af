package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jwheaton/trendwatch/pkg/engine"
)

// Store is the persistence boundary. The engine talks to it only at cycle
// boundaries: load last committed state on startup, commit the new state
// after each cycle. A failed commit leaves the previous committed state
// intact.
type Store interface {
	Load(ctx context.Context) (*engine.State, error)
	CommitCycle(ctx context.Context, st *engine.State, scores []engine.TrendScore, alerts []engine.AlertEvent) error

	ListAlerts(ctx context.Context, since time.Time, limit int) ([]engine.AlertEvent, error)
	ScoreHistory(ctx context.Context, topicID string, since time.Time) ([]engine.TrendScore, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type topicRow struct {
	ID          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	Category    string    `db:"category"`
	Aliases     string    `db:"aliases"`
	FirstSeen   time.Time `db:"first_seen"`
	LastUpdated time.Time `db:"last_updated"`
	Signals     string    `db:"signals"`
}

type alertStateRow struct {
	TopicID       string       `db:"topic_id"`
	Phase         string       `db:"phase"`
	CooldownUntil sql.NullTime `db:"cooldown_until"`
}

// Load returns the last committed engine state, or an empty state on
// first run.
func (s *SQLiteStore) Load(ctx context.Context) (*engine.State, error) {
	var rows []topicRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM topics ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}

	st := &engine.State{
		AlertStates: make(map[string]engine.AlertState),
		LastScores:  make(map[string]engine.TrendScore),
	}

	for _, row := range rows {
		t := engine.Topic{
			ID:          row.ID,
			DisplayName: row.DisplayName,
			Category:    row.Category,
			FirstSeen:   row.FirstSeen,
			LastUpdated: row.LastUpdated,
			Aliases:     make(map[string]struct{}),
		}

		var aliases []string
		if err := json.Unmarshal([]byte(row.Aliases), &aliases); err != nil {
			return nil, fmt.Errorf("decode aliases for topic %s: %w", row.ID, err)
		}
		for _, a := range aliases {
			t.Aliases[a] = struct{}{}
		}

		if err := json.Unmarshal([]byte(row.Signals), &t.Signals); err != nil {
			return nil, fmt.Errorf("decode signals for topic %s: %w", row.ID, err)
		}

		st.Topics = append(st.Topics, t)
	}

	var states []alertStateRow
	if err := s.db.SelectContext(ctx, &states, "SELECT * FROM alert_state"); err != nil {
		return nil, fmt.Errorf("load alert state: %w", err)
	}
	for _, row := range states {
		as := engine.AlertState{Phase: engine.AlertPhase(row.Phase)}
		if row.CooldownUntil.Valid {
			as.CooldownUntil = row.CooldownUntil.Time
		}
		st.AlertStates[row.TopicID] = as
	}

	var scores []engine.TrendScore
	err := s.db.SelectContext(ctx, &scores, `
		SELECT topic_id, computed_at, diversity, engagement, velocity, authority, composite, low_confidence, stale, data_gap
		FROM trend_scores
		WHERE id IN (SELECT MAX(id) FROM trend_scores GROUP BY topic_id)
	`)
	if err != nil {
		return nil, fmt.Errorf("load latest scores: %w", err)
	}
	for _, sc := range scores {
		st.LastScores[sc.TopicID] = sc
	}

	return st, nil
}

// CommitCycle writes the cycle's state, scores and alert events in one
// transaction. On error nothing is committed; the caller retries on the
// next scheduled cycle.
func (s *SQLiteStore) CommitCycle(ctx context.Context, st *engine.State, scores []engine.TrendScore, alerts []engine.AlertEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	for i := range st.Topics {
		if err := upsertTopic(ctx, tx, &st.Topics[i]); err != nil {
			return err
		}
	}

	for topicID, as := range st.AlertStates {
		var until any
		if !as.CooldownUntil.IsZero() {
			until = as.CooldownUntil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_state (topic_id, phase, cooldown_until)
			VALUES (?, ?, ?)
			ON CONFLICT(topic_id) DO UPDATE SET
				phase = excluded.phase,
				cooldown_until = excluded.cooldown_until
		`, topicID, string(as.Phase), until)
		if err != nil {
			return fmt.Errorf("upsert alert state %s: %w", topicID, err)
		}
	}

	for _, sc := range scores {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trend_scores (topic_id, computed_at, diversity, engagement, velocity, authority, composite, low_confidence, stale, data_gap)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sc.TopicID, sc.ComputedAt, sc.Diversity, sc.Engagement, sc.Velocity,
			sc.Authority, sc.Composite, sc.LowConfidence, sc.Stale, sc.DataGap)
		if err != nil {
			return fmt.Errorf("insert score for %s: %w", sc.TopicID, err)
		}
	}

	for _, ev := range alerts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_events (id, topic_id, triggered_at, composite, reason)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, ev.ID, ev.TopicID, ev.TriggeredAt, ev.Composite, ev.Reason)
		if err != nil {
			return fmt.Errorf("insert alert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

func upsertTopic(ctx context.Context, tx *sqlx.Tx, t *engine.Topic) error {
	aliasesJSON, _ := json.Marshal(t.AliasList())
	signalsJSON, err := json.Marshal(t.Signals)
	if err != nil {
		return fmt.Errorf("encode signals for topic %s: %w", t.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO topics (id, display_name, category, aliases, first_seen, last_updated, signals)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			category = excluded.category,
			aliases = excluded.aliases,
			last_updated = excluded.last_updated,
			signals = excluded.signals
	`, t.ID, t.DisplayName, t.Category, string(aliasesJSON), t.FirstSeen, t.LastUpdated, string(signalsJSON))
	if err != nil {
		return fmt.Errorf("upsert topic %s: %w", t.ID, err)
	}
	return nil
}

// ListAlerts returns alert events since a time, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, since time.Time, limit int) ([]engine.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT * FROM alert_events WHERE 1=1"
	var args []any
	if !since.IsZero() {
		query += " AND triggered_at >= ?"
		args = append(args, since)
	}
	query += " ORDER BY triggered_at DESC LIMIT ?"
	args = append(args, limit)

	var events []engine.AlertEvent
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return events, nil
}

// ScoreHistory returns a topic's score snapshots since a time, oldest
// first.
func (s *SQLiteStore) ScoreHistory(ctx context.Context, topicID string, since time.Time) ([]engine.TrendScore, error) {
	var scores []engine.TrendScore
	err := s.db.SelectContext(ctx, &scores, `
		SELECT topic_id, computed_at, diversity, engagement, velocity, authority, composite, low_confidence, stale, data_gap
		FROM trend_scores
		WHERE topic_id = ? AND computed_at >= ?
		ORDER BY computed_at
	`, topicID, since)
	if err != nil {
		return nil, fmt.Errorf("score history %s: %w", topicID, err)
	}
	return scores, nil
}
