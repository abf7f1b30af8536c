package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/kmladek/agentsessions/internal/provider"
	"github.com/kmladek/agentsessions/internal/query"
	"github.com/kmladek/agentsessions/internal/session"
)

// sessionSummary is the list-view shape: metadata plus derived
// preview, without the message bodies.
type sessionSummary struct {
	Provider      string    `json:"provider"`
	ProviderLabel string    `json:"provider_label"`
	SessionID     string    `json:"session_id"`
	SourcePath    string    `json:"source_path"`
	Model         string    `json:"model,omitempty"`
	WorkingDir    string    `json:"working_dir,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
	MessageCount  int       `json:"message_count"`
	Preview       string    `json:"preview"`
}

func summarize(s *session.Session) sessionSummary {
	return sessionSummary{
		Provider:      s.Provider,
		ProviderLabel: provider.Label(s.Provider),
		SessionID:     s.ID,
		SourcePath:    s.SourcePath,
		Model:         s.Model,
		WorkingDir:    s.WorkingDir,
		StartedAt:     s.StartedAt,
		UpdatedAt:     s.UpdatedAt,
		MessageCount:  s.MessageCount(),
		Preview:       s.Preview(),
	}
}

type sessionListResponse struct {
	Sessions      []sessionSummary `json:"sessions"`
	Page          int              `json:"page"`
	TotalPages    int              `json:"total_pages"`
	TotalSessions int              `json:"total_sessions"`
}

// queryParams parses the shared filter parameters from a request.
func queryParams(r *http.Request) (query.Params, error) {
	q := r.URL.Query()
	p := query.Params{
		Providers:     q["provider"],
		WorkingDirs:   q["working_dir"],
		Model:         q.Get("model"),
		ModelMatch:    q.Get("model_match"),
		ModelProvider: q.Get("model_provider"),
		SearchTerm:    q.Get("search"),
	}
	// An explicit zero is invalid; only an absent parameter defaults.
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n == 0 {
			n = -1 // let Normalize produce the error
		}
		p.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n == 0 {
			n = -1
		}
		p.PageSize = n
	}
	return p.Normalize()
}

func (s *Server) handleListSessions(
	w http.ResponseWriter, r *http.Request,
) {
	params, err := queryParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.store.Snapshot()
	page := query.Run(snap.Sessions, params)

	resp := sessionListResponse{
		Sessions:      make([]sessionSummary, 0, len(page.Sessions)),
		Page:          page.Page,
		TotalPages:    page.TotalPages,
		TotalSessions: page.TotalSessions,
	}
	for _, sess := range page.Sessions {
		resp.Sessions = append(resp.Sessions, summarize(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(
	w http.ResponseWriter, r *http.Request,
) {
	providerID := r.PathValue("provider")
	sessionID := r.PathValue("id")

	snap := s.store.Snapshot()
	sess := snap.Get(providerID, sessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListProviders(
	w http.ResponseWriter, r *http.Request,
) {
	snap := s.store.Snapshot()
	counts := make(map[string]int)
	latest := make(map[string]time.Time)
	for _, sess := range snap.Sessions {
		counts[sess.Provider]++
		if sess.UpdatedAt.After(latest[sess.Provider]) {
			latest[sess.Provider] = sess.UpdatedAt
		}
	}

	type providerInfo struct {
		ID           string    `json:"id"`
		Label        string    `json:"label"`
		Sessions     int       `json:"sessions"`
		LastActivity time.Time `json:"last_activity,omitzero"`
	}
	providers := make([]providerInfo, 0, len(provider.Registry))
	for _, def := range provider.Registry {
		providers = append(providers, providerInfo{
			ID:           def.ID,
			Label:        def.Label,
			Sessions:     counts[def.ID],
			LastActivity: latest[def.ID],
		})
	}
	writeJSON(w, http.StatusOK,
		map[string]any{"providers": providers})
}

func (s *Server) handleListWorkingDirs(
	w http.ResponseWriter, r *http.Request,
) {
	snap := s.store.Snapshot()
	seen := make(map[string]int)
	for _, sess := range snap.Sessions {
		if sess.WorkingDir != "" {
			seen[sess.WorkingDir]++
		}
	}

	type workdirInfo struct {
		Path     string `json:"path"`
		Sessions int    `json:"sessions"`
	}
	dirs := make([]workdirInfo, 0, len(seen))
	for dir, count := range seen {
		dirs = append(dirs, workdirInfo{Path: dir, Sessions: count})
	}
	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Path < dirs[j].Path
	})
	writeJSON(w, http.StatusOK,
		map[string]any{"working_dirs": dirs})
}

func (s *Server) handleHealth(
	w http.ResponseWriter, r *http.Request,
) {
	snap := s.store.Snapshot()
	stats := s.store.LastStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":                len(snap.Sessions),
		"refreshed_at":            snap.RefreshedAt,
		"parse_failures":          len(snap.Failures),
		"missing_roots":           stats.MissingRoots,
		"last_refresh_elapsed_ms": stats.Elapsed.Milliseconds(),
	})
}
