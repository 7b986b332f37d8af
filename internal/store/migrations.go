package store

const schema = `
CREATE TABLE IF NOT EXISTS topics (
    id           TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT 'unclassified',
    aliases      TEXT NOT NULL DEFAULT '[]',
    first_seen   DATETIME NOT NULL,
    last_updated DATETIME NOT NULL,
    signals      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_topics_updated ON topics(last_updated);
CREATE INDEX IF NOT EXISTS idx_topics_category ON topics(category);

CREATE TABLE IF NOT EXISTS alert_state (
    topic_id       TEXT PRIMARY KEY REFERENCES topics(id),
    phase          TEXT NOT NULL DEFAULT 'quiet',
    cooldown_until DATETIME
);

CREATE TABLE IF NOT EXISTS trend_scores (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id       TEXT NOT NULL REFERENCES topics(id),
    computed_at    DATETIME NOT NULL,
    diversity      REAL NOT NULL,
    engagement     REAL NOT NULL,
    velocity       REAL NOT NULL,
    authority      REAL NOT NULL,
    composite      REAL NOT NULL,
    low_confidence BOOLEAN NOT NULL DEFAULT 0,
    stale          BOOLEAN NOT NULL DEFAULT 0,
    data_gap       BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scores_topic ON trend_scores(topic_id);
CREATE INDEX IF NOT EXISTS idx_scores_computed ON trend_scores(computed_at);

CREATE TABLE IF NOT EXISTS alert_events (
    id           TEXT PRIMARY KEY,
    topic_id     TEXT NOT NULL REFERENCES topics(id),
    triggered_at DATETIME NOT NULL,
    composite    REAL NOT NULL,
    reason       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_topic ON alert_events(topic_id);
CREATE INDEX IF NOT EXISTS idx_events_triggered ON alert_events(triggered_at);
`
