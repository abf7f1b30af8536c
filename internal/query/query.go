// Package query filters, orders, and paginates the cached session
// set. It is purely in-memory: callers hand it a snapshot's session
// slice and get a page back, with no locking or I/O involved.
package query

import (
	"fmt"
	"strings"

	"github.com/kmladek/agentsessions/internal/session"
)

// Model match modes. Comparison is case-insensitive in both.
const (
	MatchExact  = "exact"
	MatchPrefix = "prefix"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Params is one query against the session set. Empty Providers or
// WorkingDirs means "all"; a set that matches no session yields an
// empty page with TotalSessions zero, which is a valid state.
type Params struct {
	Providers     []string
	WorkingDirs   []string
	Model         string
	ModelMatch    string // exact or prefix; empty defaults to exact
	ModelProvider string // when set, only this provider's sessions match
	SearchTerm    string
	Page          int
	PageSize      int
}

// Page is one page of the ordered, filtered session sequence.
type Page struct {
	Sessions      []*session.Session
	Page          int
	PageSize      int
	TotalPages    int
	TotalSessions int
}

// Normalize applies defaulting rules and validates what cannot be
// defaulted. Zero Page/PageSize default; negative values and unknown
// match modes are rejected.
func (p Params) Normalize() (Params, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 0 {
		return p, fmt.Errorf("page must be positive, got %d", p.Page)
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize < 0 {
		return p, fmt.Errorf("page_size must be positive, got %d", p.PageSize)
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	switch p.ModelMatch {
	case "":
		p.ModelMatch = MatchExact
	case MatchExact, MatchPrefix:
	default:
		return p, fmt.Errorf("unknown model match mode %q", p.ModelMatch)
	}
	return p, nil
}

// Run filters and paginates sessions. The input order does not
// matter; Run works on a pre-sorted snapshot slice and preserves
// that order. Params must already be normalized.
func Run(sessions []*session.Session, p Params) Page {
	filtered := Filter(sessions, p)

	total := len(filtered)
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}

	start := (p.Page - 1) * p.PageSize
	end := start + p.PageSize
	var items []*session.Session
	if start < total {
		if end > total {
			end = total
		}
		items = filtered[start:end]
	}

	return Page{
		Sessions:      items,
		Page:          p.Page,
		PageSize:      p.PageSize,
		TotalPages:    totalPages,
		TotalSessions: total,
	}
}

// Filter returns the sessions passing every filter in p, preserving
// input order.
func Filter(
	sessions []*session.Session, p Params,
) []*session.Session {
	providerSet := toSet(p.Providers)
	workdirSet := toSet(p.WorkingDirs)
	modelTerm := strings.ToLower(strings.TrimSpace(p.Model))
	searchTerm := strings.ToLower(strings.TrimSpace(p.SearchTerm))

	var out []*session.Session
	for _, sess := range sessions {
		if providerSet != nil && !providerSet[sess.Provider] {
			continue
		}
		if workdirSet != nil && !workdirSet[sess.WorkingDir] {
			continue
		}
		if p.ModelProvider != "" && sess.Provider != p.ModelProvider {
			continue
		}
		if modelTerm != "" && !matchModel(sess, modelTerm, p.ModelMatch) {
			continue
		}
		if searchTerm != "" && !containsTerm(sess, searchTerm) {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// matchModel applies the model term to one session's model value.
func matchModel(sess *session.Session, term, mode string) bool {
	model := strings.ToLower(sess.Model)
	if mode == MatchPrefix {
		return strings.HasPrefix(model, term)
	}
	return model == term
}

// containsTerm reports whether the lowered term appears anywhere in
// the session: provider, id, model, working dir, or message content.
func containsTerm(sess *session.Session, term string) bool {
	for _, field := range []string{
		sess.Provider, sess.ID, sess.Model, sess.WorkingDir,
	} {
		if field != "" &&
			strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	for i := range sess.Messages {
		if strings.Contains(
			strings.ToLower(sess.Messages[i].Content), term) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
