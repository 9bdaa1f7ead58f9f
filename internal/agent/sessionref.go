// ABOUTME: Heuristic session-ref extraction from unstructured agent CLI output.
// ABOUTME: Prefers an explicit session label, falls back to a UUID-shaped token.

package agent

import (
	"regexp"

	"github.com/google/uuid"
)

// The agent CLIs expose no machine-readable session-identifier channel, so
// the ref is mined from free-form output. Behavior is pinned by tests but is
// not a stable long-term contract; it tracks what the providers print today.
var (
	// Matches "session: <tok>", "session=<tok>", "Session ID: <tok>", etc.
	sessionLabelRe = regexp.MustCompile(`(?i)\bsession(?:[ _-]?id)?\s*[:=]\s*([A-Za-z0-9][A-Za-z0-9._-]*)`)

	// UUID-shaped token, the fallback when no label is present.
	uuidTokenRe = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
)

// extractSessionRef scans a transcript for an updated session identifier.
// The last labelled occurrence wins so that a resumed process reporting a
// rotated session id supersedes the token it was started with. When neither
// heuristic matches, the previous ref is kept unchanged.
func extractSessionRef(transcript, prev string) string {
	if matches := sessionLabelRe.FindAllStringSubmatch(transcript, -1); len(matches) > 0 {
		return matches[len(matches)-1][1]
	}

	if matches := uuidTokenRe.FindAllString(transcript, -1); len(matches) > 0 {
		tok := matches[len(matches)-1]
		if _, err := uuid.Parse(tok); err == nil {
			return tok
		}
	}

	return prev
}
