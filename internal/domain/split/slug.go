package split

import "strings"

// Slug converts a protocol display name to its URL slug: lowercased,
// spaces to dashes, apostrophes dropped.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "'", "")
	return s
}
