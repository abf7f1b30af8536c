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

// Gemini reads Gemini CLI chats: each session is a single JSON
// document under one of several nested layouts (tmp/**/chats,
// history trees, checkpoint dirs). OS-specific roots are supplied by
// the registry configuration, not hardcoded here.
type Gemini struct{}

// NewGemini returns the Gemini CLI adapter.
func NewGemini() *Gemini { return &Gemini{} }

func (*Gemini) ID() string { return IDGemini }

func (*Gemini) Discover(roots []string) []SourceRef {
	seen := make(map[string]bool)
	var refs []SourceRef

	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		if ref, ok := statSource(path); ok {
			refs = append(refs, ref)
		}
	}

	for _, root := range roots {
		walkJSON(filepath.Join(root, "tmp"), func(path string) {
			dir := filepath.Base(filepath.Dir(path))
			base := filepath.Base(path)
			if dir == "chats" || dir == "checkpoints" ||
				strings.HasPrefix(base, "session-") ||
				strings.HasPrefix(base, "chat-") {
				add(path)
			}
		})
		walkJSON(filepath.Join(root, "history"), add)
		walkJSON(filepath.Join(root, "checkpoints"), add)
	}
	return sortRefs(refs)
}

// walkJSON calls fn for every regular .json file under dir.
func walkJSON(dir string, fn func(path string)) {
	_ = filepath.WalkDir(dir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if strings.HasSuffix(d.Name(), ".json") {
				fn(path)
			}
			return nil
		})
}

func (*Gemini) Parse(ref SourceRef) ([]*session.Session, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse %s: invalid JSON", ref.Path)
	}
	payload := gjson.ParseBytes(data)
	if !payload.IsObject() {
		return nil, nil
	}

	b := newSessionBuilder(IDGemini, ref.Path)
	b.setSessionID(geminiSessionID(payload, ref.Path))
	b.setWorkingDir(geminiWorkdir(payload))
	b.recordTimestamp(parseTimestamp(payload.Get("startTime")))
	b.recordTimestamp(parseTimestamp(payload.Get("lastUpdated")))

	model := ""
	payload.Get("messages").ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		role := firstString(entry, "role", "type", "speaker")
		ts := firstTimestamp(entry,
			"timestamp", "create_time", "created_at", "time", "ts")

		content := entry.Get("content")
		if !content.Exists() {
			content = entry.Get("parts")
		}
		b.addMessage(role, extractTextContent(content), ts)

		if model == "" {
			model = firstString(entry, "model")
		}
		if model == "" {
			model = firstString(entry.Get("metadata"), "model")
		}
		return true
	})
	if model == "" {
		model = firstString(payload, "model")
	}
	if model != "" {
		b.setModel(model, 2)
	}

	sess := b.build()
	if sess == nil {
		return nil, nil
	}
	return []*session.Session{sess}, nil
}

func geminiWorkdir(payload gjson.Result) string {
	if dir := firstString(payload,
		"cwd", "working_directory", "workspace_root", "project_root",
		"projectPath", "workingDir", "root"); dir != "" {
		return dir
	}
	metadata := payload.Get("metadata")
	if metadata.IsObject() {
		projectMeta := metadata
		if nested := metadata.Get("project"); nested.IsObject() {
			projectMeta = nested
		}
		if dir := firstString(projectMeta,
			"cwd", "root", "workspace", "workspace_root"); dir != "" {
			return dir
		}
	}
	if project := payload.Get("project"); project.IsObject() {
		if dir := firstString(project,
			"cwd", "workspace_root", "root"); dir != "" {
			return dir
		}
	}
	return ""
}

// geminiSessionID prefers an explicit ID in the document and falls
// back to a path-derived one, qualifying the stem with its parent
// directory when the parent is a per-session folder.
func geminiSessionID(payload gjson.Result, path string) string {
	if id := firstString(payload,
		"sessionId", "session_id",
		"conversationId", "conversation_id"); id != "" {
		return id
	}
	if conv := payload.Get("conversation"); conv.IsObject() {
		if id := firstString(conv, "id"); id != "" {
			return id
		}
	}
	if id := firstString(payload, "checkpoint_id"); id != "" {
		return id
	}

	stem := stemOf(path)
	parent := filepath.Base(filepath.Dir(path))
	if parent != "checkpoints" && parent != "history" {
		return parent + ":" + stem
	}
	if rel, err := filepath.Rel(
		filepath.Dir(filepath.Dir(path)), path); err == nil {
		return rel
	}
	return stem
}
