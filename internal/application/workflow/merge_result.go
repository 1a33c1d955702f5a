package workflow

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	prURLPattern  = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+/(?:pull|merge_requests)/(\d+)`)
	commitPattern = regexp.MustCompile(`(?i)\bcommit(?:\s+hash)?\s*[:=]?\s*` + "`?" + `([0-9a-f]{7,40})\b`)
	bareSHA       = regexp.MustCompile(`\b[0-9a-f]{40}\b`)
)

// MergeReport is what the merge node extracts from agent output text
type MergeReport struct {
	PRURL      string
	PRNumber   int
	CommitHash string
}

// ParseMergeReport scans agent output for a PR URL and a commit hash.
// The last PR URL wins since agents tend to restate the final link at the end.
func ParseMergeReport(text string) MergeReport {
	var report MergeReport

	if matches := prURLPattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		report.PRURL = strings.TrimRight(last[0], ".,;:")
		if n, err := strconv.Atoi(last[1]); err == nil {
			report.PRNumber = n
		}
	}

	if m := commitPattern.FindStringSubmatch(text); m != nil {
		report.CommitHash = strings.ToLower(m[1])
	} else if sha := bareSHA.FindString(text); sha != "" {
		report.CommitHash = sha
	}

	return report
}
