package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/jwheaton/trendwatch/pkg/source"
)

// Weights are the sub-score weights of the composite. Must sum to 1.0.
type Weights struct {
	Diversity  float64 `yaml:"diversity" json:"diversity"`
	Engagement float64 `yaml:"engagement" json:"engagement"`
	Velocity   float64 `yaml:"velocity" json:"velocity"`
	Authority  float64 `yaml:"authority" json:"authority"`
}

// Config holds every tunable of the engine. None of these are hardcoded
// anywhere else; Validate rejects inconsistent values at startup.
type Config struct {
	// Resolver.
	SimilarityThreshold float64
	AmbiguityMargin     float64

	// Velocity. Windows ascending; the shortest is the recent window, the
	// longest the older one.
	Windows       []time.Duration
	TypicalGrowth float64

	// Scoring.
	Weights          Weights
	AuthorityWeights map[source.SourceID]float64

	// Alerting.
	AlertThreshold   float64
	RisingThreshold  float64
	CooldownDuration time.Duration

	// Normalization.
	BaselineMinSamples int

	// Lifecycle.
	RetentionHorizon time.Duration
	CycleBudget      time.Duration // 0 = no wall-clock budget
}

// DefaultConfig returns tuning that works for 15-minute collection cycles.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.5,
		AmbiguityMargin:     0.05,
		Windows:             []time.Duration{6 * time.Hour, 24 * time.Hour},
		TypicalGrowth:       1.0,
		Weights: Weights{
			Diversity:  0.25,
			Engagement: 0.25,
			Velocity:   0.25,
			Authority:  0.25,
		},
		AuthorityWeights: map[source.SourceID]float64{
			source.SourceNews:    1.0,
			source.SourceTrends:  0.9,
			source.SourceTwitter: 0.8,
			source.SourceSearch:  0.7,
			source.SourceRSS:     0.6,
			source.SourceYouTube: 0.5,
		},
		AlertThreshold:     70,
		RisingThreshold:    50,
		CooldownDuration:   6 * time.Hour,
		BaselineMinSamples: 5,
		RetentionHorizon:   72 * time.Hour,
	}
}

// Validate checks the configuration. Any error here is fatal at startup.
func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold >= 1 {
		return &ConfigError{Field: "similarity_threshold", Reason: "must be in (0,1)"}
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= c.SimilarityThreshold {
		return &ConfigError{Field: "ambiguity_margin", Reason: "must be in [0, similarity_threshold)"}
	}

	if len(c.Windows) < 2 {
		return &ConfigError{Field: "window_sizes", Reason: "need at least two windows"}
	}
	for i, w := range c.Windows {
		if w <= 0 {
			return &ConfigError{Field: "window_sizes", Reason: "windows must be positive"}
		}
		if i > 0 && w <= c.Windows[i-1] {
			return &ConfigError{Field: "window_sizes", Reason: "windows must be strictly increasing"}
		}
	}
	if c.TypicalGrowth <= 0 {
		return &ConfigError{Field: "typical_growth", Reason: "must be positive"}
	}

	sum := c.Weights.Diversity + c.Weights.Engagement + c.Weights.Velocity + c.Weights.Authority
	if math.Abs(sum-1.0) > 1e-9 {
		return &ConfigError{Field: "sub_score_weights", Reason: fmt.Sprintf("must sum to 1.0, got %g", sum)}
	}
	for _, w := range []float64{c.Weights.Diversity, c.Weights.Engagement, c.Weights.Velocity, c.Weights.Authority} {
		if w < 0 {
			return &ConfigError{Field: "sub_score_weights", Reason: "weights must be non-negative"}
		}
	}

	if len(c.AuthorityWeights) == 0 {
		return &ConfigError{Field: "source_authority_weights", Reason: "must not be empty"}
	}
	for id, w := range c.AuthorityWeights {
		if w <= 0 {
			return &ConfigError{Field: "source_authority_weights", Reason: fmt.Sprintf("weight for %s must be positive", id)}
		}
	}

	if c.AlertThreshold <= 0 || c.AlertThreshold > 100 {
		return &ConfigError{Field: "alert_threshold", Reason: "must be in (0,100]"}
	}
	if c.RisingThreshold < 0 || c.RisingThreshold >= c.AlertThreshold {
		return &ConfigError{Field: "rising_threshold", Reason: "must be in [0, alert_threshold)"}
	}
	if c.CooldownDuration <= 0 {
		return &ConfigError{Field: "cooldown_duration", Reason: "must be positive"}
	}

	if c.BaselineMinSamples < 1 {
		return &ConfigError{Field: "baseline_min_samples", Reason: "must be at least 1"}
	}
	if c.RetentionHorizon < c.Windows[len(c.Windows)-1] {
		return &ConfigError{Field: "topic_retention_horizon", Reason: "must cover the longest window"}
	}
	if c.CycleBudget < 0 {
		return &ConfigError{Field: "cycle_budget", Reason: "must not be negative"}
	}
	return nil
}
