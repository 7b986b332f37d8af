package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/jwheaton/trendwatch/internal/config"
	"github.com/jwheaton/trendwatch/internal/scheduler"
	"github.com/jwheaton/trendwatch/internal/store"
	"github.com/jwheaton/trendwatch/pkg/alert"
	"github.com/jwheaton/trendwatch/pkg/classify"
	"github.com/jwheaton/trendwatch/pkg/engine"
	"github.com/jwheaton/trendwatch/pkg/server"
	"github.com/jwheaton/trendwatch/pkg/source"
)

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildClassifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) classify.Classifier {
	if cfg.Classify.Provider == "gemini" && cfg.Classify.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Classify.APIKey})
		if err != nil {
			log.Warn().Err(err).Msg("gemini client init failed, using keyword classifier")
			return classify.NewKeyword(cfg.Classify.Categories)
		}
		log.Info().Str("model", cfg.Classify.Model).Msg("category validation via gemini")
		return classify.NewGemini(client, cfg.Classify.Model, cfg.Classify.Categories)
	}
	return classify.NewKeyword(cfg.Classify.Categories)
}

func buildEngine(ctx context.Context, cfg *config.Config, db store.Store, log zerolog.Logger) (*engine.Engine, error) {
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engCfg,
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
		engine.WithClassifier(buildClassifier(ctx, cfg, log)),
	)
	if err != nil {
		return nil, err
	}

	state, err := db.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	eng.RestoreState(state)
	return eng, nil
}

func buildCollectors(cfg *config.Config, filter *source.Filter) []source.Collector {
	var collectors []source.Collector

	serp := source.NewSerpClient(cfg.Sources.Serp.APIKey)

	if cfg.Sources.Trends.Enabled && cfg.Sources.Serp.APIKey != "" {
		collectors = append(collectors, source.NewTrends(serp,
			cfg.Sources.Trends.Seeds, cfg.Sources.Trends.RisingPerSeed, filter))
	}
	if cfg.Sources.News.Enabled && cfg.Sources.Serp.APIKey != "" {
		collectors = append(collectors, source.NewNews(serp,
			cfg.Sources.News.Terms, cfg.Sources.News.PerTerm, filter))
	}
	if cfg.Sources.Search.Enabled && cfg.Sources.Serp.APIKey != "" {
		collectors = append(collectors, source.NewSearch(serp,
			cfg.Sources.Search.Seeds, cfg.Sources.Search.RelatedPerSeed,
			cfg.Sources.Search.OrganicPerSeed, filter))
	}
	if cfg.Sources.YouTube.Enabled && cfg.Sources.Serp.APIKey != "" {
		collectors = append(collectors, source.NewYouTube(serp,
			cfg.Sources.YouTube.Queries, cfg.Sources.YouTube.PerSeed, filter))
	}
	if cfg.Sources.Twitter.Enabled && cfg.Sources.Twitter.BearerToken != "" {
		collectors = append(collectors, source.NewTwitter(
			cfg.Sources.Twitter.BearerToken,
			cfg.Sources.Twitter.Queries,
			cfg.Sources.Twitter.MaxResults,
			filter,
		))
	}
	if cfg.Sources.RSS.Enabled {
		feeds := make([]source.RSSFeed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = source.RSSFeed{Name: f.Name, URL: f.URL}
		}
		collectors = append(collectors, source.NewRSS(feeds, filter))
	}

	return collectors
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}
	if cfg.Alerts.Email.Enabled && cfg.Alerts.Email.APIKey != "" && len(cfg.Alerts.Email.To) > 0 {
		notifiers = append(notifiers, alert.NewEmail(cfg.Alerts.Email.APIKey, cfg.Alerts.Email.From, cfg.Alerts.Email.To))
	}

	return alert.NewManager(notifiers)
}

func runCycle() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	ctx := context.Background()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	eng, err := buildEngine(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	filter := source.NewFilter(cfg.Filter.IncludeKeywords, cfg.Filter.ExcludeKeywords)
	collectors := buildCollectors(cfg, filter)
	if len(collectors) == 0 {
		return fmt.Errorf("no collectors enabled (set SERPAPI_KEY or enable sources in config)")
	}

	sched := scheduler.New(db, collectors, eng, buildAlertManager(cfg),
		cfg.Schedule.ParseCycleInterval(), log.With().Str("component", "scheduler").Logger())
	sched.RunOnce(ctx)
	return nil
}

func runTopics(jsonOutput bool, category string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	ctx := context.Background()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	eng, err := buildEngine(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	snap := eng.Snapshot()
	topics := snap.Topics
	if category != "" {
		filtered := topics[:0]
		for _, t := range topics {
			if t.Category == category {
				filtered = append(filtered, t)
			}
		}
		topics = filtered
	}
	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(topics)
	}

	if len(topics) == 0 {
		fmt.Println("no topics found (try running a cycle first: trendwatch cycle)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tVELOCITY\tSOURCES\tCATEGORY\tPHASE\tTOPIC\tLAST UPDATED")
	for _, t := range topics {
		composite, velocity := 0.0, 0.0
		if t.Score != nil {
			composite, velocity = t.Score.Composite, t.Score.Velocity
		}
		fmt.Fprintf(w, "%.1f\t%.1f\t%d\t%s\t%s\t%s\t%s\n",
			composite, velocity, len(t.Sources), t.Category, t.Phase,
			t.DisplayName, t.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	log := newLogger()
	ctx := context.Background()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	eng, err := buildEngine(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	srv := server.New(db, eng, port, log.With().Str("component", "server").Logger())
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	log := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	eng, err := buildEngine(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	filter := source.NewFilter(cfg.Filter.IncludeKeywords, cfg.Filter.ExcludeKeywords)
	collectors := buildCollectors(cfg, filter)
	alertMgr := buildAlertManager(cfg)

	sched := scheduler.New(db, collectors, eng, alertMgr,
		cfg.Schedule.ParseCycleInterval(), log.With().Str("component", "scheduler").Logger())

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler error")
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
	}()

	srv := server.New(db, eng, port, log.With().Str("component", "server").Logger())
	return srv.ListenAndServe()
}
