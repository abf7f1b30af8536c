package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmladek/agentsessions/internal/session"
)

func parseCodexFile(t *testing.T, relPath, content string) *session.Session {
	t.Helper()
	root := t.TempDir()
	path := writeTestFile(t, root, relPath, content)
	sessions, err := NewCodex().Parse(refFor(t, path))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0]
}

func TestCodexParseEnvelope(t *testing.T) {
	content := `{"timestamp":"` + tsZero + `","type":"session_meta","payload":{"cwd":"/srv/app","context":{"model":"gpt-5-codex"}}}
{"timestamp":"` + tsZeroS1 + `","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"run the tests"}]}}
{"timestamp":"` + tsZeroS2 + `","type":"response_item","payload":{"type":"message","role":"assistant","model":"gpt-5-codex-high","content":[{"type":"output_text","text":"All green."}]}}
`
	sess := parseCodexFile(t,
		"sessions/2024/01/01/rollout-2024-01-01T00-00-00-ab-cd-ef-01-23.jsonl",
		content)

	assert.Equal(t, IDCodex, sess.Provider)
	assert.Equal(t, "ab-cd-ef-01-23", sess.ID)
	assert.Equal(t, "/srv/app", sess.WorkingDir)
	assert.Equal(t, "gpt-5-codex-high", sess.Model)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "run the tests", sess.Messages[0].Content)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, ts(tsZero), sess.StartedAt)
	assert.Equal(t, ts(tsZeroS2), sess.UpdatedAt)
}

func TestCodexSkipsNonMessagePayloads(t *testing.T) {
	content := `{"timestamp":"` + tsZero + `","payload":{"type":"token_count","total":42}}
{"timestamp":"` + tsZeroS1 + `","payload":{"type":"message","role":"user","content":"hello"}}
`
	sess := parseCodexFile(t, "sessions/2024/01/01/a.jsonl", content)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "hello", sess.Messages[0].Content)
}

func TestCodexStoredAtTimestamp(t *testing.T) {
	content := `{"stored_at":"` + tsLate + `","payload":{"type":"message","role":"user","content":"late"}}` + "\n"
	sess := parseCodexFile(t, "sessions/2024/01/01/b.jsonl", content)
	assert.Equal(t, ts(tsLate), sess.UpdatedAt)
	assert.Equal(t, ts(tsLate), sess.Messages[0].CreatedAt)
}

func TestCodexModelPriorities(t *testing.T) {
	content := `{"model":"envelope-model","payload":{"type":"message","role":"user","content":"q"}}
{"payload":{"type":"message","role":"assistant","model":"assistant-model","content":"a"}}
{"model":"another-envelope","payload":{"type":"message","role":"user","content":"q2"}}
`
	sess := parseCodexFile(t, "sessions/2024/01/01/c.jsonl", content)
	assert.Equal(t, "assistant-model", sess.Model)
}

func TestCodexWorkdirFromNestedCommand(t *testing.T) {
	content := `{"payload":{"type":"exec","command":{"cwd":"/deep/dir"}}}
{"payload":{"type":"message","role":"user","content":"hi"}}
`
	sess := parseCodexFile(t, "sessions/2024/01/01/d.jsonl", content)
	assert.Equal(t, "/deep/dir", sess.WorkingDir)
}

func TestCodexSummaryFallsBackAsContent(t *testing.T) {
	content := `{"payload":{"type":"message","role":"assistant","summary":"compacted summary"}}` + "\n"
	sess := parseCodexFile(t, "sessions/2024/01/01/e.jsonl", content)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "compacted summary", sess.Messages[0].Content)
}

func TestCodexDiscover(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "sessions/2024/01/01/a.jsonl", "{}\n")
	writeTestFile(t, root, "sessions/2024/02/15/b.jsonl", "{}\n")
	writeTestFile(t, root, "sessions/readme.md", "ignored")

	refs := NewCodex().Discover([]string{root})
	require.Len(t, refs, 2)
	assert.Contains(t, refs[0].Path, "a.jsonl")
	assert.Contains(t, refs[1].Path, "b.jsonl")
}
