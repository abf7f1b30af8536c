package provider

import (
	"strings"
	"time"

	"github.com/kmladek/agentsessions/internal/session"
)

// msgKey dedupes messages surfaced more than once by a source
// (e.g. a log replaying earlier events after a continuation).
type msgKey struct {
	role    string
	content string
	ts      int64
}

// sessionBuilder accumulates session metadata consistently across
// adapters: first working dir wins, higher-priority model mentions
// win, and timestamps widen the started/updated window.
type sessionBuilder struct {
	provider   string
	sourcePath string
	sessionID  string
	workingDir string
	model      string

	modelPriority int
	startedAt     time.Time
	updatedAt     time.Time
	messages      []session.Message
	seen          map[msgKey]struct{}
}

func newSessionBuilder(provider, sourcePath string) *sessionBuilder {
	return &sessionBuilder{
		provider:      provider,
		sourcePath:    sourcePath,
		modelPriority: -1,
		seen:          make(map[msgKey]struct{}),
	}
}

func (b *sessionBuilder) setSessionID(id string) {
	if id = strings.TrimSpace(id); id != "" {
		b.sessionID = id
	}
}

func (b *sessionBuilder) recordTimestamp(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if b.startedAt.IsZero() || ts.Before(b.startedAt) {
		b.startedAt = ts
	}
	if b.updatedAt.IsZero() || ts.After(b.updatedAt) {
		b.updatedAt = ts
	}
}

// setWorkingDir records the working directory; the first non-blank
// candidate wins.
func (b *sessionBuilder) setWorkingDir(dir string) {
	if b.workingDir != "" {
		return
	}
	if dir = strings.TrimSpace(dir); dir != "" {
		b.workingDir = dir
	}
}

// setModel records the model name. Mentions at equal or higher
// priority replace the current value, so an assistant message's
// model beats one scraped from session metadata.
func (b *sessionBuilder) setModel(model string, priority int) {
	model = strings.TrimSpace(model)
	if model == "" || priority < b.modelPriority {
		return
	}
	b.model = model
	b.modelPriority = priority
}

// addMessage appends a message unless it is a duplicate or has
// neither role nor content. A blank role degrades to "event".
func (b *sessionBuilder) addMessage(
	role, content string, ts time.Time,
) {
	content = strings.TrimSpace(content)
	role = strings.TrimSpace(role)
	if role == "" {
		role = "event"
	}
	if content == "" {
		return
	}

	key := msgKey{role: role, content: content}
	if !ts.IsZero() {
		key.ts = ts.UnixNano()
	}
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}

	b.messages = append(b.messages, session.Message{
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	})
	b.recordTimestamp(ts)
}

// build finalizes the session, sorting messages chronologically.
// Returns nil when the source yielded neither messages nor any
// metadata worth keeping.
func (b *sessionBuilder) build() *session.Session {
	if len(b.messages) == 0 && b.startedAt.IsZero() &&
		b.updatedAt.IsZero() && b.model == "" {
		return nil
	}

	sessionID := b.sessionID
	if sessionID == "" {
		sessionID = stemOf(b.sourcePath)
	}

	messages := b.messages
	session.SortMessages(messages)

	return &session.Session{
		Provider:   b.provider,
		ID:         sessionID,
		SourcePath: b.sourcePath,
		Model:      b.model,
		WorkingDir: b.workingDir,
		StartedAt:  b.startedAt,
		UpdatedAt:  b.updatedAt,
		Messages:   messages,
	}
}
