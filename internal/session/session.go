// Package session defines the canonical session and message model
// that all provider adapters produce and all downstream components
// consume.
package session

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const previewMaxLen = 200

// Message is a single chat message. Role carries the provider's own
// vocabulary verbatim; CreatedAt is zero when the source had no
// usable timestamp.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Session is the normalized representation of one agent session.
// Values are immutable once built; the store replaces whole sessions
// rather than mutating them.
type Session struct {
	Provider   string    `json:"provider"`
	ID         string    `json:"session_id"`
	SourcePath string    `json:"source_path"`
	Model      string    `json:"model,omitempty"`
	WorkingDir string    `json:"working_dir,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
	Messages   []Message `json:"messages"`
}

// Key identifies a session uniquely across providers.
type Key struct {
	Provider string
	ID       string
}

// Key returns the session's identity key.
func (s *Session) Key() Key {
	return Key{Provider: s.Provider, ID: s.ID}
}

// MessageCount reports the number of materialized messages. It is
// always consistent with len(Messages); there is no lazy counting.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// LastMessage returns the most recent message, or nil when the
// session is empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Preview derives a short single-line excerpt of the most recent
// message content for list views.
func (s *Session) Preview() string {
	last := s.LastMessage()
	if last == nil {
		return ""
	}
	preview := strings.TrimSpace(
		strings.ReplaceAll(last.Content, "\n", " "),
	)
	if len(preview) > previewMaxLen {
		cut := previewMaxLen
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	return preview
}

// SortMessages orders messages chronologically ascending. Messages
// without a timestamp sort first, keeping their original relative
// order (the order the source emitted them in).
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i].CreatedAt, messages[j].CreatedAt
		if a.IsZero() {
			return !b.IsZero()
		}
		if b.IsZero() {
			return false
		}
		return a.Before(b)
	})
}

// Merge combines two records with the same identity, as when a
// transcript and the relational store both carry a conversation.
// Messages are unioned and deduped by role, content, and timestamp;
// StartedAt keeps the earliest known time, UpdatedAt the latest, and
// empty metadata fields fill in from b.
func Merge(a, b *Session) *Session {
	merged := *a

	type messageKey struct {
		role    string
		content string
		at      time.Time
	}
	seen := make(map[messageKey]bool, len(a.Messages)+len(b.Messages))
	messages := make([]Message, 0, len(a.Messages)+len(b.Messages))
	for _, m := range a.Messages {
		key := messageKey{m.Role, m.Content, m.CreatedAt}
		if m.Content == "" || seen[key] {
			continue
		}
		seen[key] = true
		messages = append(messages, m)
	}
	for _, m := range b.Messages {
		key := messageKey{m.Role, m.Content, m.CreatedAt}
		if m.Content == "" || seen[key] {
			continue
		}
		seen[key] = true
		messages = append(messages, m)
	}
	SortMessages(messages)
	merged.Messages = messages

	if merged.Model == "" {
		merged.Model = b.Model
	}
	if merged.WorkingDir == "" {
		merged.WorkingDir = b.WorkingDir
	}
	if merged.StartedAt.IsZero() ||
		(!b.StartedAt.IsZero() && b.StartedAt.Before(merged.StartedAt)) {
		merged.StartedAt = b.StartedAt
	}
	if b.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = b.UpdatedAt
	}
	return &merged
}

// Less defines the canonical listing order: UpdatedAt descending,
// sessions with no update time last, ties broken by session ID so
// the order is total and pagination is stable.
func Less(a, b *Session) bool {
	at, bt := a.UpdatedAt, b.UpdatedAt
	switch {
	case at.IsZero() && bt.IsZero():
		return a.ID < b.ID
	case at.IsZero():
		return false
	case bt.IsZero():
		return true
	case at.Equal(bt):
		return a.ID < b.ID
	default:
		return at.After(bt)
	}
}
