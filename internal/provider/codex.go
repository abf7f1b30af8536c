package provider

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kmladek/agentsessions/internal/session"
)

// Codex reads Codex CLI rollouts: JSONL files laid out as
// sessions/<year>/<month>/<day>/*.jsonl, each line wrapping its
// payload in a {timestamp, type, payload} envelope.
type Codex struct{}

// NewCodex returns the Codex adapter.
func NewCodex() *Codex { return &Codex{} }

func (*Codex) ID() string { return IDCodex }

func (*Codex) Discover(roots []string) []SourceRef {
	var refs []SourceRef
	for _, root := range roots {
		sessionsDir := filepath.Join(root, "sessions")
		_ = filepath.WalkDir(sessionsDir,
			func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() ||
					!strings.HasSuffix(d.Name(), ".jsonl") {
					return nil
				}
				if ref, ok := statSource(path); ok {
					refs = append(refs, ref)
				}
				return nil
			})
	}
	return sortRefs(refs)
}

func (*Codex) Parse(ref SourceRef) ([]*session.Session, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Path, err)
	}
	defer f.Close()

	b := newSessionBuilder(IDCodex, ref.Path)
	b.setSessionID(codexSessionID(ref.Path))

	lr := newLineReader(f, maxLineSize)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		if !gjson.Valid(line) {
			continue
		}
		codexEvent(b, gjson.Parse(line))
	}

	sess := b.build()
	if sess == nil {
		return nil, nil
	}
	return []*session.Session{sess}, nil
}

func codexEvent(b *sessionBuilder, event gjson.Result) {
	ts := firstTimestamp(event,
		"timestamp", "created_at", "time", "ts", "stored_at")
	b.recordTimestamp(ts)

	b.setWorkingDir(codexWorkdir(event))

	if model, priority := codexModel(event); model != "" {
		b.setModel(model, priority)
	}

	payload := event.Get("payload")
	if !payload.IsObject() || payload.Get("type").Str != "message" {
		return
	}

	content := payload.Get("content")
	if !content.Exists() && payload.Get("summary").Exists() {
		content = payload.Get("summary")
	}
	text := extractTextContent(content)
	if strings.TrimSpace(text) == "" {
		return
	}
	role := firstString(payload, "role")
	if role == "" {
		role = firstString(event, "role")
	}
	b.addMessage(role, text, ts)
}

// codexWorkdir probes the envelope and its payload for a working
// directory, including the nested command/shell containers the CLI
// emits for exec events.
func codexWorkdir(event gjson.Result) string {
	for _, source := range []gjson.Result{event, event.Get("payload")} {
		if !source.IsObject() {
			continue
		}
		if dir := firstString(source,
			"cwd", "workspace_root", "project_root",
			"working_directory", "root", "workspace"); dir != "" {
			return dir
		}
		for _, key := range []string{"command", "shell", "run", "workspace"} {
			nested := source.Get(key)
			if !nested.IsObject() {
				continue
			}
			if dir := firstString(nested,
				"cwd", "root", "workspace_root",
				"project_root"); dir != "" {
				return dir
			}
		}
	}
	return ""
}

// codexModel returns the model mentioned by an event and its
// priority: assistant payloads beat other payloads, which beat the
// bare envelope field.
func codexModel(event gjson.Result) (string, int) {
	payload := event.Get("payload")
	if payload.IsObject() {
		if model := strings.TrimSpace(payload.Get("model").Str); model != "" {
			if payload.Get("role").Str == "assistant" {
				return model, 2
			}
			return model, 1
		}
		context := payload.Get("context")
		if context.IsObject() {
			if model := strings.TrimSpace(context.Get("model").Str); model != "" {
				return model, 1
			}
		}
	}
	if model := strings.TrimSpace(event.Get("model").Str); model != "" {
		return model, 0
	}
	return "", -1
}

// codexSessionID keeps the trailing UUID of rollout filenames like
// rollout-2025-01-02T03-04-05-<uuid>.jsonl.
func codexSessionID(path string) string {
	stem := stemOf(path)
	parts := strings.Split(stem, "-")
	if len(parts) >= 5 {
		return strings.Join(parts[len(parts)-5:], "-")
	}
	return stem
}
