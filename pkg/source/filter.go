package source

import "strings"

// Title length guards. Fragments shorter than the minimum are noise;
// anything longer than the maximum is a sentence, not a topic.
const (
	minTitleLen = 3
	maxTitleLen = 80
)

// Filter holds keyword lists for signal hygiene. Discovery is global, so
// the include list is usually empty; exclude drops known junk.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter creates a filter from include/exclude keyword lists.
func NewFilter(include, exclude []string) *Filter {
	inc := make([]string, len(include))
	for i, kw := range include {
		inc[i] = strings.ToLower(kw)
	}
	exc := make([]string, len(exclude))
	for i, kw := range exclude {
		exc[i] = strings.ToLower(kw)
	}
	return &Filter{include: inc, exclude: exc}
}

// Keep reports whether a raw title should become a signal.
func (f *Filter) Keep(title string) bool {
	norm := NormalizeTitle(title)
	if len(norm) < minTitleLen || len(norm) > maxTitleLen {
		return false
	}

	lower := strings.ToLower(title)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, kw := range f.include {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
