package provider

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kmladek/agentsessions/internal/session"
)

// storeFileName is the relational store bundled inside a Claude
// Code home directory alongside the JSONL project logs.
const storeFileName = "__store.db"

var uuidRe = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-` +
		`[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
)

// Claude reads Claude Code session logs: JSONL transcripts under
// <root>/projects plus the __store.db relational store.
type Claude struct{}

// NewClaude returns the Claude Code adapter.
func NewClaude() *Claude { return &Claude{} }

func (*Claude) ID() string { return IDClaude }

// Discover finds JSONL transcripts under each root's projects
// directory and the relational store file when present. Roots that
// do not exist are skipped silently.
func (*Claude) Discover(roots []string) []SourceRef {
	var refs []SourceRef
	for _, root := range roots {
		projectsDir := filepath.Join(root, "projects")
		_ = filepath.WalkDir(projectsDir,
			func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // skip unreadable entries
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

		storePath := filepath.Join(root, storeFileName)
		if ref, ok := statSource(storePath); ok {
			refs = append(refs, ref)
		}
	}
	return sortRefs(refs)
}

// Parse converts one discovered source into sessions. The store
// file yields many sessions; a JSONL transcript yields at most one.
func (c *Claude) Parse(ref SourceRef) ([]*session.Session, error) {
	if filepath.Base(ref.Path) == storeFileName {
		return parseClaudeStore(ref.Path)
	}
	return parseClaudeTranscript(ref.Path)
}

func parseClaudeTranscript(path string) ([]*session.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	b := newSessionBuilder(IDClaude, path)
	b.setSessionID(claudeSessionID(path))
	b.setWorkingDir(projectWorkdir(filepath.Dir(path)))

	lr := newLineReader(f, maxLineSize)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		if !gjson.Valid(line) {
			continue
		}
		claudeEvent(b, gjson.Parse(line))
	}

	sess := b.build()
	if sess == nil {
		return nil, nil
	}
	return []*session.Session{sess}, nil
}

// claudeEvent folds one JSONL event into the builder.
func claudeEvent(b *sessionBuilder, event gjson.Result) {
	payload := event.Get("message")

	ts := firstTimestamp(event, "timestamp", "created_at", "time", "ts")
	if ts.IsZero() && payload.IsObject() {
		ts = firstTimestamp(payload, "timestamp", "createdAt")
	}
	b.recordTimestamp(ts)

	b.setWorkingDir(claudeEventWorkdir(event))

	if !payload.IsObject() {
		return
	}

	role := firstString(payload, "role")
	if model := payload.Get("model").Str; model != "" {
		priority := 1
		if role == "assistant" {
			priority = 2
		}
		b.setModel(model, priority)
	}

	text := extractTextContent(payload.Get("content"))
	if strings.TrimSpace(text) == "" {
		return
	}
	if role == "" {
		role = firstString(event, "type")
	}
	if role == "" {
		role = firstString(payload, "type")
	}
	b.addMessage(role, text, ts)
}

// claudeEventWorkdir probes the event for a working directory,
// checking top-level fields and common nested containers.
func claudeEventWorkdir(event gjson.Result) string {
	if dir := firstString(event,
		"cwd", "workspace_root", "project_path"); dir != "" {
		return dir
	}
	for _, key := range []string{
		"workspace", "project", "session", "context",
	} {
		nested := event.Get(key)
		if !nested.IsObject() {
			continue
		}
		if dir := firstString(nested,
			"cwd", "workspace_root", "project_path",
			"root", "path"); dir != "" {
			return dir
		}
	}
	return ""
}

// projectWorkdir scrapes the project's working directory from the
// metadata files Claude Code drops next to its transcripts.
func projectWorkdir(projectDir string) string {
	pathKeys := []string{
		"absolutePath", "projectPath", "workspaceRoot", "rootPath", "path",
	}
	for _, name := range []string{
		"project.json", "metadata.json",
		"project_metadata.json", "manifest.json",
	} {
		data, err := os.ReadFile(filepath.Join(projectDir, name))
		if err != nil || !gjson.ValidBytes(data) {
			continue
		}
		payload := gjson.ParseBytes(data)
		if dir := firstString(payload, pathKeys...); dir != "" {
			return dir
		}
		for _, container := range []string{"project", "workspace", "meta"} {
			nested := payload.Get(container)
			if !nested.IsObject() {
				continue
			}
			if dir := firstString(nested, pathKeys...); dir != "" {
				return dir
			}
		}
	}
	return ""
}

// claudeSessionID derives a compact session ID from a log path.
// UUID stems are used verbatim; long hyphenated stems keep their
// last five segments; short stems are qualified by the parent
// directory to stay unique.
func claudeSessionID(path string) string {
	stem := stemOf(path)
	if uuidRe.MatchString(stem) {
		return stem
	}

	var parts []string
	for _, part := range strings.Split(stem, "-") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) >= 5 {
		return strings.Join(parts[len(parts)-5:], "-")
	}

	if len(stem) >= 8 {
		return stem
	}

	parent := filepath.Base(filepath.Dir(path))
	if parent != "" && parent != "." {
		return parent + ":" + stem
	}
	return stem
}
