package engine

import (
	"sort"
	"strings"
)

// Category is one class of remote operation sharing a throughput
// ceiling. Pattern segments of the form {name} match any single path
// segment.
type Category struct {
	Pattern   string
	PerMinute int
}

// DefaultCategories covers the five known endpoint classes of the
// governance API. Ceilings are per minute and overridable via config.
var DefaultCategories = []Category{
	{Pattern: "/api/v1/users/{id}", PerMinute: 2000},
	{Pattern: "/governance/api/v1", PerMinute: 1200},
	{Pattern: "/api/v1/users", PerMinute: 600},
	{Pattern: "/api/v1/apps/{id}", PerMinute: 500},
	{Pattern: "/api/v1/apps", PerMinute: 100},
}

// defaultCategoryName is returned when no pattern matches. Calls under
// it share one conservative ceiling.
const (
	defaultCategoryName      = "default"
	defaultCategoryPerMinute = 600
)

// classifier evaluates an ordered pattern table by longest-prefix
// match. The table is explicit data so classification stays auditable.
type classifier struct {
	ordered []Category
}

func newClassifier(table []Category) *classifier {
	ordered := make([]Category, len(table))
	copy(ordered, table)

	// Longer patterns first so the more specific pattern wins ties.
	sort.SliceStable(ordered, func(i, j int) bool {
		si := len(splitSegments(ordered[i].Pattern))
		sj := len(splitSegments(ordered[j].Pattern))
		if si != sj {
			return si > sj
		}
		return len(ordered[i].Pattern) > len(ordered[j].Pattern)
	})

	return &classifier{ordered: ordered}
}

// Classify maps an operation path to the name of its endpoint
// category. It is deterministic and ignores any query string.
func (c *classifier) Classify(path string) string {
	trimmed := path
	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	segments := splitSegments(trimmed)

	for _, category := range c.ordered {
		if prefixMatch(splitSegments(category.Pattern), segments) {
			return category.Pattern
		}
	}
	return defaultCategoryName
}

// prefixMatch reports whether the pattern segments are a prefix of the
// path segments, treating {placeholder} segments as wildcards.
func prefixMatch(pattern, segments []string) bool {
	if len(pattern) > len(segments) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	return true
}

func splitSegments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}
