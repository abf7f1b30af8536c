package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmladek/agentsessions/internal/provider"
	"github.com/kmladek/agentsessions/internal/store"
)

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()

	write := func(relPath, content string) {
		path := filepath.Join(root, relPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("projects/app/alpha001.jsonl",
		`{"timestamp":"2024-01-02T00:00:00Z","cwd":"/work/app","message":{"role":"user","content":"find the needle"}}`+"\n"+
			`{"timestamp":"2024-01-02T00:00:05Z","message":{"role":"assistant","model":"claude-sonnet-4","content":"found it"}}`+"\n")
	write("projects/app/beta0001.jsonl",
		`{"timestamp":"2024-01-03T00:00:00Z","cwd":"/work/other","message":{"role":"user","content":"nothing special"}}`+"\n")

	st := store.New(
		[]provider.Provider{provider.NewClaude()},
		map[string][]string{provider.IDClaude: {root}},
		0, nil,
	)
	st.RefreshNow(context.Background())

	ts := httptest.NewServer(New(st).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestListSessions(t *testing.T) {
	ts := fixtureServer(t)

	var resp struct {
		Sessions []struct {
			SessionID    string `json:"session_id"`
			Provider     string `json:"provider"`
			Preview      string `json:"preview"`
			MessageCount int    `json:"message_count"`
		} `json:"sessions"`
		Page          int `json:"page"`
		TotalPages    int `json:"total_pages"`
		TotalSessions int `json:"total_sessions"`
	}
	r := getJSON(t, ts.URL+"/api/sessions", &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, 2, resp.TotalSessions)
	assert.Equal(t, 1, resp.TotalPages)
	require.Len(t, resp.Sessions, 2)
	// beta updated later, listed first
	assert.Equal(t, "beta0001", resp.Sessions[0].SessionID)
	assert.Equal(t, "alpha001", resp.Sessions[1].SessionID)
	assert.Equal(t, 2, resp.Sessions[1].MessageCount)
	assert.Equal(t, "found it", resp.Sessions[1].Preview)
}

func TestListSessionsFilters(t *testing.T) {
	ts := fixtureServer(t)

	var resp struct {
		TotalSessions int `json:"total_sessions"`
	}
	getJSON(t, ts.URL+"/api/sessions?working_dir=/work/app", &resp)
	assert.Equal(t, 1, resp.TotalSessions)

	getJSON(t, ts.URL+"/api/sessions?provider=gemini-cli", &resp)
	assert.Equal(t, 0, resp.TotalSessions)

	getJSON(t, ts.URL+"/api/sessions?model=claude-sonnet&model_match=prefix", &resp)
	assert.Equal(t, 1, resp.TotalSessions)
}

func TestListSessionsRejectsBadParams(t *testing.T) {
	ts := fixtureServer(t)
	r := getJSON(t, ts.URL+"/api/sessions?page=-2", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	r = getJSON(t, ts.URL+"/api/sessions?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	r = getJSON(t, ts.URL+"/api/sessions?page_size=0", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	r = getJSON(t, ts.URL+"/api/sessions?model_match=fuzzy", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestGetSessionDetail(t *testing.T) {
	ts := fixtureServer(t)

	var sess struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	r := getJSON(t, ts.URL+"/api/sessions/claude-code/alpha001", &sess)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "alpha001", sess.SessionID)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "find the needle", sess.Messages[0].Content)

	r = getJSON(t, ts.URL+"/api/sessions/claude-code/missing", nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	ts := fixtureServer(t)

	var res struct {
		Hits []struct {
			SessionID         string `json:"session_id"`
			MessageIndex      int    `json:"message_index"`
			MatchStart        int    `json:"match_start"`
			Snippet           string `json:"snippet"`
			SnippetMatchStart int    `json:"snippet_match_start"`
		} `json:"hits"`
		HasMore bool `json:"has_more"`
	}
	getJSON(t, ts.URL+"/api/search?q=needle", &res)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "alpha001", res.Hits[0].SessionID)
	assert.Equal(t, 0, res.Hits[0].MessageIndex)
	assert.Equal(t, 9, res.Hits[0].MatchStart)
	assert.False(t, res.HasMore)

	// a model filter matching nothing yields zero hits
	getJSON(t, ts.URL+"/api/search?q=needle&model=no-such-model", &res)
	assert.Empty(t, res.Hits)
	assert.False(t, res.HasMore)

	// empty term yields zero hits
	getJSON(t, ts.URL+"/api/search?q=", &res)
	assert.Empty(t, res.Hits)
}

func TestProvidersEndpoint(t *testing.T) {
	ts := fixtureServer(t)

	var res struct {
		Providers []struct {
			ID       string `json:"id"`
			Label    string `json:"label"`
			Sessions int    `json:"sessions"`
		} `json:"providers"`
	}
	getJSON(t, ts.URL+"/api/providers", &res)
	require.Len(t, res.Providers, 3)
	assert.Equal(t, "claude-code", res.Providers[0].ID)
	assert.Equal(t, "Claude Code", res.Providers[0].Label)
	assert.Equal(t, 2, res.Providers[0].Sessions)
}

func TestWorkingDirsEndpoint(t *testing.T) {
	ts := fixtureServer(t)

	var res struct {
		WorkingDirs []struct {
			Path     string `json:"path"`
			Sessions int    `json:"sessions"`
		} `json:"working_dirs"`
	}
	getJSON(t, ts.URL+"/api/working-dirs", &res)
	require.Len(t, res.WorkingDirs, 2)
	assert.Equal(t, "/work/app", res.WorkingDirs[0].Path)
	assert.Equal(t, "/work/other", res.WorkingDirs[1].Path)
}
