package channel

import (
	"fmt"
	"slices"
	"strings"
)

// Filter fields
const (
	FieldTitle = "title"
	FieldLink  = "link"
)

type Channel struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	FeedURL string   `yaml:"feed_url"` // overrides the feed URL derived from ID
	Filters []Filter `yaml:"filters"`
}

type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// IsHandle reports whether the channel is identified by an @handle that
// must be resolved to a channel id before its feed can be read.
func (c Channel) IsHandle() bool {
	return strings.HasPrefix(c.ID, "@")
}

type registryFile struct {
	Channels []Channel `yaml:"channels"`
}

// Reject reports whether value fails the filter and why. Rules match
// case-insensitive substrings, and an exclude match wins over includes.
func (f Filter) Reject(value string) (bool, string) {
	lower := strings.ToLower(value)
	contains := func(pattern string) bool {
		return strings.Contains(lower, strings.ToLower(pattern))
	}

	if i := slices.IndexFunc(f.Excludes, contains); i >= 0 {
		return true, fmt.Sprintf("%s contains %q", f.Field, f.Excludes[i])
	}
	if len(f.Includes) > 0 && !slices.ContainsFunc(f.Includes, contains) {
		return true, fmt.Sprintf("%s matches none of %v", f.Field, f.Includes)
	}

	return false, ""
}
