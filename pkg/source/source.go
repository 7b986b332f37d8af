package source

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SourceID identifies which platform a signal came from.
type SourceID string

const (
	SourceTrends  SourceID = "google_trends"
	SourceNews    SourceID = "news"
	SourceSearch  SourceID = "google_search"
	SourceYouTube SourceID = "youtube"
	SourceTwitter SourceID = "twitter"
	SourceRSS     SourceID = "rss"
)

// Metric names collectors report. A collector that cannot observe a metric
// omits it from the map; the engine treats a missing metric as zero
// contribution, never as neutral.
const (
	MetricEngagement = "engagement"
	MetricVolume     = "volume"
)

// Signal is one raw observation from one source about a candidate topic.
// Immutable once created.
type Signal struct {
	SourceID   SourceID           `json:"source_id"`
	RawTitle   string             `json:"raw_title"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	ObservedAt time.Time          `json:"observed_at"`
	Rank       int                `json:"rank,omitempty"` // position in the source's own listing, 0 = unranked
}

// KeyBucket is the granularity at which repeated observations of the same
// title collapse into one signal. Matches the collection cadence.
const KeyBucket = 15 * time.Minute

// Key returns the signal's identity key. Re-ingesting a signal with the
// same key must not double-count.
func (s Signal) Key() string {
	bucket := s.ObservedAt.UTC().Truncate(KeyBucket)
	return fmt.Sprintf("%s|%s|%d", s.SourceID, NormalizeTitle(s.RawTitle), bucket.Unix())
}

// Collector is the interface every signal source implements.
type Collector interface {
	Name() SourceID
	Collect(ctx context.Context) ([]Signal, error)
}

// AllSourceIDs returns all known source IDs.
func AllSourceIDs() []SourceID {
	return []SourceID{
		SourceTrends,
		SourceNews,
		SourceSearch,
		SourceYouTube,
		SourceTwitter,
		SourceRSS,
	}
}

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9\s]`)
	junkWords = regexp.MustCompile(`\b(today|live|20\d\d|news|stock|price|official|trailer)\b`)
	spaces    = regexp.MustCompile(`\s+`)
)

// NormalizeTitle collapses near-duplicate titles across platforms:
// lowercase, strip punctuation, drop filler tokens that vary between
// sources reporting the same event.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	s = junkWords.ReplaceAllString(s, "")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// ParseEngagement converts loosely typed engagement values sources report
// ("1,200", "+350%", "Breakout") into a number. Unparseable values are 0.
func ParseEngagement(v string) float64 {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0
	}
	if strings.EqualFold(s, "breakout") {
		return 100
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "+", "")
	s = strings.TrimSuffix(s, "%")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
