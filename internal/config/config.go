package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jwheaton/trendwatch/pkg/engine"
	"github.com/jwheaton/trendwatch/pkg/source"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Engine   EngineConfig   `yaml:"engine"`
	Classify ClassifyConfig `yaml:"classify"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Filter   FilterConfig   `yaml:"filter"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the cycle interval.
type ScheduleConfig struct {
	CycleInterval string `yaml:"cycle_interval"`
}

// ParseCycleInterval returns the cycle interval as time.Duration.
func (s ScheduleConfig) ParseCycleInterval() time.Duration {
	d, err := time.ParseDuration(s.CycleInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// SourcesConfig holds configuration for all signal collectors.
type SourcesConfig struct {
	Serp    SerpConfig    `yaml:"serpapi"`
	Trends  TrendsConfig  `yaml:"google_trends"`
	News    NewsConfig    `yaml:"news"`
	Search  SearchConfig  `yaml:"google_search"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Twitter TwitterConfig `yaml:"twitter"`
	RSS     RSSConfig     `yaml:"rss"`
}

// SerpConfig holds the shared SerpAPI credential.
type SerpConfig struct {
	APIKey string `yaml:"api_key"`
}

// TrendsConfig for the Google Trends collector.
type TrendsConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Seeds         []string `yaml:"seeds"`
	RisingPerSeed int      `yaml:"rising_per_seed"`
}

// NewsConfig for the Google News collector.
type NewsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Terms   []string `yaml:"terms"`
	PerTerm int      `yaml:"articles_per_term"`
}

// SearchConfig for the Google Search collector.
type SearchConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Seeds          []string `yaml:"seeds"`
	RelatedPerSeed int      `yaml:"related_per_seed"`
	OrganicPerSeed int      `yaml:"organic_per_seed"`
}

// YouTubeConfig for the YouTube collector.
type YouTubeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Queries []string `yaml:"queries"`
	PerSeed int      `yaml:"results_per_query"`
}

// TwitterConfig for the Twitter/X collector.
type TwitterConfig struct {
	Enabled     bool     `yaml:"enabled"`
	BearerToken string   `yaml:"bearer_token"`
	Queries     []string `yaml:"queries"`
	MaxResults  int      `yaml:"max_results"`
}

// RSSConfig for the RSS feed collector.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// EngineConfig configures the scoring engine. Parsed and validated into an
// engine.Config before the engine starts.
type EngineConfig struct {
	SimilarityThreshold float64            `yaml:"similarity_threshold"`
	AmbiguityMargin     float64            `yaml:"ambiguity_margin"`
	WindowSizes         []string           `yaml:"window_sizes"`
	TypicalGrowth       float64            `yaml:"typical_growth"`
	Weights             engine.Weights     `yaml:"sub_score_weights"`
	AuthorityWeights    map[string]float64 `yaml:"source_authority_weights"`
	AlertThreshold      float64            `yaml:"alert_threshold"`
	RisingThreshold     float64            `yaml:"rising_threshold"`
	CooldownDuration    string             `yaml:"cooldown_duration"`
	BaselineMinSamples  int                `yaml:"baseline_min_samples"`
	RetentionHorizon    string             `yaml:"topic_retention_horizon"`
	CycleBudget         string             `yaml:"cycle_budget"`
}

// ClassifyConfig configures the category-validation collaborator.
type ClassifyConfig struct {
	Provider   string              `yaml:"provider"` // "gemini" or "keyword"
	Model      string              `yaml:"model"`
	APIKey     string              `yaml:"api_key"`
	Categories map[string][]string `yaml:"categories"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
	Email   EmailConfig   `yaml:"email"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// EmailConfig for Resend email alerts.
type EmailConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKey  string   `yaml:"api_key"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// FilterConfig configures signal hygiene keywords.
type FilterConfig struct {
	IncludeKeywords []string `yaml:"include_keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	eng := engine.DefaultConfig()

	authority := make(map[string]float64, len(eng.AuthorityWeights))
	for id, w := range eng.AuthorityWeights {
		authority[string(id)] = w
	}

	return &Config{
		Database: DatabaseConfig{Path: "./trendwatch.db"},
		Schedule: ScheduleConfig{CycleInterval: "15m"},
		Sources: SourcesConfig{
			Trends: TrendsConfig{
				Enabled: true,
				Seeds: []string{
					"today trending", "breaking news", "viral",
					"new release", "price surge",
				},
				RisingPerSeed: 20,
			},
			News: NewsConfig{
				Enabled: true,
				Terms: []string{
					"breaking news", "market rally", "new album",
					"championship", "product launch",
				},
				PerTerm: 12,
			},
			Search: SearchConfig{
				Enabled:        true,
				Seeds:          []string{"trending now", "what happened"},
				RelatedPerSeed: 12,
				OrganicPerSeed: 10,
			},
			YouTube: YouTubeConfig{
				Enabled: true,
				Queries: []string{"trending", "viral video"},
				PerSeed: 12,
			},
			Twitter: TwitterConfig{
				Enabled:    false,
				MaxResults: 80,
			},
			RSS: RSSConfig{
				Enabled: false,
			},
		},
		Engine: EngineConfig{
			SimilarityThreshold: eng.SimilarityThreshold,
			AmbiguityMargin:     eng.AmbiguityMargin,
			WindowSizes:         []string{"6h", "24h"},
			TypicalGrowth:       eng.TypicalGrowth,
			Weights:             eng.Weights,
			AuthorityWeights:    authority,
			AlertThreshold:      eng.AlertThreshold,
			RisingThreshold:     eng.RisingThreshold,
			CooldownDuration:    "6h",
			BaselineMinSamples:  eng.BaselineMinSamples,
			RetentionHorizon:    "72h",
		},
		Classify: ClassifyConfig{
			Provider: "keyword",
			Model:    "gemini-2.0-flash",
			Categories: map[string][]string{
				"stocks_finance": {"stock", "earnings", "ipo", "inflation", "crypto", "bitcoin", "fed"},
				"politics_news":  {"election", "congress", "senate", "court", "policy", "sanctions"},
				"tech_ai":        {"ai", "software", "startup", "chip", "robot", "app"},
				"popular_culture": {"movie", "album", "celebrity", "concert", "award", "premiere"},
				"health_wellness": {"health", "fitness", "diet", "vaccine", "wellness"},
			},
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, applies env var overrides,
// and validates. Invalid configuration is fatal: the engine refuses to
// run with it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if _, err := cfg.EngineConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineConfig converts the YAML engine section into a validated
// engine.Config.
func (c *Config) EngineConfig() (engine.Config, error) {
	eng := engine.DefaultConfig()

	eng.SimilarityThreshold = c.Engine.SimilarityThreshold
	eng.AmbiguityMargin = c.Engine.AmbiguityMargin
	eng.TypicalGrowth = c.Engine.TypicalGrowth
	eng.Weights = c.Engine.Weights
	eng.AlertThreshold = c.Engine.AlertThreshold
	eng.RisingThreshold = c.Engine.RisingThreshold
	eng.BaselineMinSamples = c.Engine.BaselineMinSamples

	if len(c.Engine.WindowSizes) > 0 {
		eng.Windows = eng.Windows[:0]
		for _, w := range c.Engine.WindowSizes {
			d, err := time.ParseDuration(w)
			if err != nil {
				return engine.Config{}, &engine.ConfigError{Field: "window_sizes", Reason: fmt.Sprintf("bad duration %q", w)}
			}
			eng.Windows = append(eng.Windows, d)
		}
	}

	var err error
	if eng.CooldownDuration, err = parseDuration("cooldown_duration", c.Engine.CooldownDuration); err != nil {
		return engine.Config{}, err
	}
	if eng.RetentionHorizon, err = parseDuration("topic_retention_horizon", c.Engine.RetentionHorizon); err != nil {
		return engine.Config{}, err
	}
	if c.Engine.CycleBudget != "" {
		if eng.CycleBudget, err = parseDuration("cycle_budget", c.Engine.CycleBudget); err != nil {
			return engine.Config{}, err
		}
	} else {
		eng.CycleBudget = 0
	}

	if len(c.Engine.AuthorityWeights) > 0 {
		eng.AuthorityWeights = make(map[source.SourceID]float64, len(c.Engine.AuthorityWeights))
		for id, w := range c.Engine.AuthorityWeights {
			eng.AuthorityWeights[source.SourceID(id)] = w
		}
	}

	if err := eng.Validate(); err != nil {
		return engine.Config{}, err
	}
	return eng, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &engine.ConfigError{Field: field, Reason: fmt.Sprintf("bad duration %q", v)}
	}
	return d, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SERPAPI_KEY"); v != "" {
		cfg.Sources.Serp.APIKey = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Sources.Twitter.BearerToken = v
		cfg.Sources.Twitter.Enabled = true
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Classify.APIKey = v
		cfg.Classify.Provider = "gemini"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Alerts.Email.APIKey = v
	}
}
