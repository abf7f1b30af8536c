// Package provider implements the session-log adapters. Each
// supported agent CLI stores its history in a different on-disk
// layout; an adapter discovers source artifacts under configured
// roots and parses them into canonical sessions.
package provider

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kmladek/agentsessions/internal/session"
)

// Provider IDs form a closed set; adapters are selected from the
// registry, never by runtime type inspection.
const (
	IDClaude = "claude-code"
	IDCodex  = "openai-codex"
	IDGemini = "gemini-cli"
)

// SourceRef describes one discovered source artifact. Size and
// Mtime form the staleness key together with Path.
type SourceRef struct {
	Path  string
	Size  int64
	Mtime int64 // mtime in nanoseconds
}

// ParseFailure records a source artifact that could not be parsed.
// Failures are diagnostics, not errors: the batch continues and the
// query path never sees them.
type ParseFailure struct {
	Provider string
	Path     string
	Reason   string
}

// Provider is the adapter contract. Discover enumerates sources
// under the given roots, silently skipping roots that do not exist.
// Parse converts one source into sessions; most sources yield one
// session, a relational store yields many, and a nil slice with a
// nil error means the artifact is not a session and should be
// skipped without being recorded as a failure.
type Provider interface {
	ID() string
	Discover(roots []string) []SourceRef
	Parse(ref SourceRef) ([]*session.Session, error)
}

// Def describes a supported provider's identity, configuration
// keys, and default filesystem layout.
type Def struct {
	ID         string
	Label      string
	EnvVar     string   // env var overriding the home root
	HomeSubdir string   // default root relative to $HOME
	ExtraRoots []string // OS-specific roots relative to $HOME
}

// Registry lists all supported providers. Order is stable and used
// for iteration in config, refresh, and the providers endpoint.
var Registry = []Def{
	{
		ID:         IDClaude,
		Label:      "Claude Code",
		EnvVar:     "CLAUDE_HOME",
		HomeSubdir: ".claude",
	},
	{
		ID:         IDCodex,
		Label:      "Codex",
		EnvVar:     "CODEX_HOME",
		HomeSubdir: ".codex",
	},
	{
		ID:         IDGemini,
		Label:      "Gemini CLI",
		EnvVar:     "GEMINI_HOME",
		HomeSubdir: ".gemini",
		ExtraRoots: []string{
			".config/google-generative-ai",
			".local/share/google-generative-ai",
			"Library/Application Support/google/generative-ai",
		},
	},
}

// ByID returns the Def for the given provider ID.
func ByID(id string) (Def, bool) {
	for _, def := range Registry {
		if def.ID == id {
			return def, true
		}
	}
	return Def{}, false
}

// Label returns the display label for a provider ID, falling back
// to the raw ID for unknown providers.
func Label(id string) string {
	if def, ok := ByID(id); ok {
		return def.Label
	}
	return id
}

// All returns one adapter instance per registered provider.
func All() []Provider {
	return []Provider{
		NewClaude(),
		NewCodex(),
		NewGemini(),
	}
}

// statSource builds a SourceRef for path, or false when the path
// does not exist or is not a regular file.
func statSource(path string) (SourceRef, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return SourceRef{}, false
	}
	return SourceRef{
		Path:  path,
		Size:  info.Size(),
		Mtime: info.ModTime().UnixNano(),
	}, true
}

// sortRefs orders refs by path so discovery output is deterministic
// across runs.
func sortRefs(refs []SourceRef) []SourceRef {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Path < refs[j].Path
	})
	return refs
}

// stemOf returns the base filename without its extension.
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
