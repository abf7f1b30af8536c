package query

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmladek/agentsessions/internal/session"
)

func mkSession(provider, id, model, workdir string, updated time.Time) *session.Session {
	return &session.Session{
		Provider:   provider,
		ID:         id,
		Model:      model,
		WorkingDir: workdir,
		UpdatedAt:  updated,
		Messages: []session.Message{
			{Role: "user", Content: "content of " + id},
		},
	}
}

// sorted builds the canonical snapshot order used by the store.
func sorted(sessions ...*session.Session) []*session.Session {
	sort.Slice(sessions, func(i, j int) bool {
		return session.Less(sessions[i], sessions[j])
	})
	return sessions
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func norm(t *testing.T, p Params) Params {
	t.Helper()
	normalized, err := p.Normalize()
	require.NoError(t, err)
	return normalized
}

func TestNormalizeDefaultsAndRejects(t *testing.T) {
	p := norm(t, Params{})
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, MatchExact, p.ModelMatch)

	p = norm(t, Params{PageSize: MaxPageSize + 1})
	assert.Equal(t, MaxPageSize, p.PageSize)

	_, err := Params{Page: -1}.Normalize()
	assert.Error(t, err)
	_, err = Params{PageSize: -5}.Normalize()
	assert.Error(t, err)
	_, err = Params{ModelMatch: "fuzzy"}.Normalize()
	assert.Error(t, err)
}

func TestTwoProviderPagination(t *testing.T) {
	sessions := sorted(
		mkSession("claude-code", "a1", "", "", day(1)),
		mkSession("claude-code", "a2", "", "", day(2)),
		mkSession("claude-code", "a3", "", "", day(3)),
		mkSession("openai-codex", "b1", "", "", day(4)),
	)

	page := Run(sessions, norm(t, Params{PageSize: 2}))
	assert.Equal(t, 4, page.TotalSessions)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "b1", page.Sessions[0].ID)
	assert.Equal(t, "a3", page.Sessions[1].ID)

	page = Run(sessions, norm(t, Params{Page: 2, PageSize: 2}))
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "a2", page.Sessions[0].ID)
	assert.Equal(t, "a1", page.Sessions[1].ID)
}

func TestPagesPartitionSessions(t *testing.T) {
	var sessions []*session.Session
	for i := 1; i <= 17; i++ {
		sessions = append(sessions,
			mkSession("claude-code", fmt.Sprintf("s%02d", i), "", "", day(i)))
	}
	sessions = sorted(sessions...)

	seen := make(map[string]int)
	p := norm(t, Params{PageSize: 5})
	first := Run(sessions, p)
	assert.Equal(t, 4, first.TotalPages)
	for pageNum := 1; pageNum <= first.TotalPages; pageNum++ {
		p.Page = pageNum
		for _, sess := range Run(sessions, p).Sessions {
			seen[sess.ID]++
		}
	}
	assert.Len(t, seen, 17)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}
}

func TestPageBeyondRangeIsEmptyNotError(t *testing.T) {
	sessions := sorted(mkSession("claude-code", "only", "", "", day(1)))
	page := Run(sessions, norm(t, Params{Page: 9, PageSize: 10}))
	assert.Empty(t, page.Sessions)
	assert.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 9, page.Page)
}

func TestEmptySetHasZeroTotalPages(t *testing.T) {
	page := Run(nil, norm(t, Params{}))
	assert.Equal(t, 0, page.TotalSessions)
	assert.Equal(t, 0, page.TotalPages)
	assert.Empty(t, page.Sessions)
}

func TestProviderAndWorkdirFilters(t *testing.T) {
	sessions := sorted(
		mkSession("claude-code", "c1", "", "/a", day(1)),
		mkSession("openai-codex", "x1", "", "/b", day(2)),
		mkSession("gemini-cli", "g1", "", "/a", day(3)),
	)

	page := Run(sessions, norm(t, Params{Providers: []string{"claude-code", "gemini-cli"}}))
	assert.Equal(t, 2, page.TotalSessions)

	page = Run(sessions, norm(t, Params{WorkingDirs: []string{"/a"}}))
	assert.Equal(t, 2, page.TotalSessions)

	page = Run(sessions, norm(t, Params{Providers: []string{"no-such"}}))
	assert.Equal(t, 0, page.TotalSessions)
	assert.Equal(t, 0, page.TotalPages)
}

func TestModelMatching(t *testing.T) {
	sessions := sorted(
		mkSession("openai-codex", "m1", "gpt-4o", "", day(1)),
		mkSession("openai-codex", "m2", "gpt-4", "", day(2)),
		mkSession("openai-codex", "m3", "gpt-3.5", "", day(3)),
	)

	page := Run(sessions, norm(t, Params{Model: "GPT-4", ModelMatch: MatchExact}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "m2", page.Sessions[0].ID)

	page = Run(sessions, norm(t, Params{Model: "gpt-4", ModelMatch: MatchPrefix}))
	assert.Equal(t, 2, page.TotalSessions)
}

func TestModelProviderRestriction(t *testing.T) {
	sessions := sorted(
		mkSession("claude-code", "c1", "claude-sonnet-4", "", day(1)),
		mkSession("openai-codex", "x1", "gpt-4o", "", day(2)),
	)

	// model_provider alone narrows the result to that provider
	page := Run(sessions, norm(t, Params{ModelProvider: "openai-codex"}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "x1", page.Sessions[0].ID)

	// with a model term, only that provider's matching sessions pass
	page = Run(sessions, norm(t, Params{
		Model:         "gpt-4o",
		ModelProvider: "openai-codex",
	}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "x1", page.Sessions[0].ID)

	page = Run(sessions, norm(t, Params{
		Model:         "nonexistent",
		ModelProvider: "openai-codex",
	}))
	assert.Equal(t, 0, page.TotalSessions)
}

func TestSearchTermFilters(t *testing.T) {
	a := mkSession("claude-code", "a", "", "", day(1))
	a.Messages = []session.Message{{Role: "user", Content: "fix the Login bug"}}
	b := mkSession("claude-code", "b", "", "", day(2))
	b.Messages = []session.Message{{Role: "user", Content: "write docs"}}

	page := Run(sorted(a, b), norm(t, Params{SearchTerm: "login"}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "a", page.Sessions[0].ID)
}

func TestSearchTermMatchesMetadataFields(t *testing.T) {
	sessions := sorted(
		mkSession("claude-code", "s1", "claude-sonnet-4", "/home/dev/webapp", day(1)),
		mkSession("openai-codex", "s2", "gpt-4o", "/home/dev/tooling", day(2)),
	)

	page := Run(sessions, norm(t, Params{SearchTerm: "WebApp"}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "s1", page.Sessions[0].ID, "matches working dir")

	page = Run(sessions, norm(t, Params{SearchTerm: "gpt-4o"}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "s2", page.Sessions[0].ID, "matches model")

	page = Run(sessions, norm(t, Params{SearchTerm: "codex"}))
	require.Equal(t, 1, page.TotalSessions)
	assert.Equal(t, "s2", page.Sessions[0].ID, "matches provider")
}

func TestUndatedSessionsSortLast(t *testing.T) {
	sessions := sorted(
		mkSession("claude-code", "dated", "", "", day(1)),
		mkSession("claude-code", "undated", "", "", time.Time{}),
	)
	page := Run(sessions, norm(t, Params{}))
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "dated", page.Sessions[0].ID)
	assert.Equal(t, "undated", page.Sessions[1].ID)
}
