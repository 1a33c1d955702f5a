package feature

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	slugMaxRunes = 48
	slugFallback = "feature"
	branchPrefix = "feat/"
)

// Slugify converts a feature name to a filesystem and branch safe slug:
// NFKC normalization, lowercase, [a-z0-9-] only, collapsed dashes
func Slugify(name string) string {
	name = strings.ToLower(norm.NFKC.String(name))

	var sb strings.Builder
	lastDash := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteRune('-')
				lastDash = true
			}
		}
	}

	slug := strings.Trim(sb.String(), "-")
	if utf8.RuneCountInString(slug) > slugMaxRunes {
		slug = strings.TrimRight(string([]rune(slug)[:slugMaxRunes]), "-")
	}
	if slug == "" {
		return slugFallback
	}
	return slug
}

// BranchName returns the git branch used for a feature slug
func BranchName(slug string) string {
	return branchPrefix + slug
}
