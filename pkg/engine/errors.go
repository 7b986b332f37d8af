package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jwheaton/trendwatch/pkg/source"
)

// IngestionError reports sources whose signal batches were rejected.
// Partial batches are accepted: valid sources in the same batch are
// ingested normally.
type IngestionError struct {
	Sources map[source.SourceID]string
}

func (e *IngestionError) Error() string {
	parts := make([]string, 0, len(e.Sources))
	for id, reason := range e.Sources {
		parts = append(parts, fmt.Sprintf("%s: %s", id, reason))
	}
	sort.Strings(parts)
	return "ingestion rejected: " + strings.Join(parts, "; ")
}

// ConfigError describes an invalid engine configuration. Fatal at startup
// only: the engine refuses to run rather than score with broken weights.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}
