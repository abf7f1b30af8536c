// Package search performs lexical substring search over session
// message content, producing hits with byte-accurate offsets for
// client-side highlighting.
package search

import (
	"strings"
	"unicode/utf8"

	"github.com/kmladek/agentsessions/internal/session"
)

const (
	// DefaultLimit caps compact hit lists for preview panels.
	DefaultLimit = 8

	// snippetContext is the byte budget on each side of a match.
	// Near either end of the content the window shifts instead of
	// padding.
	snippetContext = 80
)

// Hit is one search result: the first matching message of one
// session. Match offsets are byte positions within the full message
// content; snippet offsets are byte positions within Snippet.
type Hit struct {
	Provider   string `json:"provider"`
	SessionID  string `json:"session_id"`
	SourcePath string `json:"source_path"`

	MessageIndex int    `json:"message_index"`
	MatchStart   int    `json:"match_start"`
	MatchLength  int    `json:"match_length"`

	Snippet            string `json:"snippet"`
	SnippetMatchStart  int    `json:"snippet_match_start"`
	SnippetMatchLength int    `json:"snippet_match_length"`
}

// Result is a capped hit list. HasMore reports whether matching
// sessions beyond the cap exist.
type Result struct {
	Hits    []Hit `json:"hits"`
	HasMore bool  `json:"has_more"`
}

// Run scans sessions in their given order (the caller passes the
// query engine's filtered, sorted sequence) and returns at most
// limit hits, one per session. An empty or blank term matches
// nothing.
func Run(sessions []*session.Session, term string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	needle := asciiLower(strings.TrimSpace(term))
	if needle == "" {
		return Result{Hits: []Hit{}}
	}

	res := Result{Hits: []Hit{}}
	for _, sess := range sessions {
		hit, ok := firstMatch(sess, needle)
		if !ok {
			continue
		}
		if len(res.Hits) == limit {
			res.HasMore = true
			break
		}
		res.Hits = append(res.Hits, hit)
	}
	return res
}

// firstMatch finds the first message of sess containing needle and
// builds its hit.
func firstMatch(sess *session.Session, needle string) (Hit, bool) {
	for i := range sess.Messages {
		content := sess.Messages[i].Content
		start := strings.Index(asciiLower(content), needle)
		if start < 0 {
			continue
		}
		snippet, snippetStart := extractSnippet(content, start, len(needle))
		return Hit{
			Provider:           sess.Provider,
			SessionID:          sess.ID,
			SourcePath:         sess.SourcePath,
			MessageIndex:       i,
			MatchStart:         start,
			MatchLength:        len(needle),
			Snippet:            snippet,
			SnippetMatchStart:  snippetStart,
			SnippetMatchLength: len(needle),
		}, true
	}
	return Hit{}, false
}

// extractSnippet cuts a window of content around the match with
// snippetContext bytes on each side, shifting at the edges instead
// of padding and aligning the cut points to rune boundaries.
func extractSnippet(content string, matchStart, matchLen int) (string, int) {
	want := matchLen + 2*snippetContext
	if want >= len(content) {
		return content, matchStart
	}

	start := matchStart - snippetContext
	if start < 0 {
		start = 0
	}
	end := start + want
	if end > len(content) {
		end = len(content)
		start = end - want
	}

	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	return content[start:end], matchStart - start
}

// asciiLower lowercases ASCII letters only, preserving byte length
// so match offsets computed on the lowered text remain valid for
// the original.
func asciiLower(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
