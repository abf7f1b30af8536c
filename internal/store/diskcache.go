// Package store maintains the in-memory session snapshot: it runs
// provider discovery, reconciles parsed sessions against source
// staleness keys, and swaps complete snapshots atomically so readers
// never observe a partial refresh.
package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kmladek/agentsessions/internal/provider"
	"github.com/kmladek/agentsessions/internal/session"
)

const (
	cacheVersion  = 1
	cacheFileName = "session_cache.json"
)

type cacheEntry struct {
	Provider   string             `json:"provider"`
	SourcePath string             `json:"source_path"`
	Size       int64              `json:"size"`
	MtimeNs    int64              `json:"mtime_ns"`
	Sessions   []*session.Session `json:"sessions"`
}

type cacheFile struct {
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Entries   []cacheEntry `json:"entries"`
}

// DiskCache persists parsed sessions between runs so a restart can
// skip re-parsing unchanged sources. It is best effort: any load
// failure behaves like a cold cache, and a write failure disables
// the cache for the rest of the process lifetime.
type DiskCache struct {
	path    string
	enabled bool
	entries map[string]cacheEntry
}

// NewDiskCache creates a disk cache under dir. A disabled cache is
// a no-op on every method.
func NewDiskCache(dir string, enabled bool) *DiskCache {
	return &DiskCache{
		path:    filepath.Join(dir, cacheFileName),
		enabled: enabled && dir != "",
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(providerID, path string) string {
	return providerID + "\x00" + path
}

// Load reads the cache file. Version mismatches and unreadable or
// malformed files leave the cache empty.
func (c *DiskCache) Load() {
	if !c.enabled {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var payload cacheFile
	if json.Unmarshal(data, &payload) != nil ||
		payload.Version != cacheVersion {
		return
	}
	for _, entry := range payload.Entries {
		if entry.Provider == "" || entry.SourcePath == "" {
			continue
		}
		c.entries[cacheKey(entry.Provider, entry.SourcePath)] = entry
	}
}

// Lookup returns the cached sessions for a source when the entry's
// staleness key still matches the live file.
func (c *DiskCache) Lookup(
	providerID string, ref provider.SourceRef,
) ([]*session.Session, bool) {
	if !c.enabled {
		return nil, false
	}
	entry, ok := c.entries[cacheKey(providerID, ref.Path)]
	if !ok || entry.Size != ref.Size || entry.MtimeNs != ref.Mtime {
		return nil, false
	}
	return entry.Sessions, true
}

// Store records the parsed sessions for a source under its current
// staleness key.
func (c *DiskCache) Store(
	providerID string, ref provider.SourceRef,
	sessions []*session.Session,
) {
	if !c.enabled {
		return
	}
	c.entries[cacheKey(providerID, ref.Path)] = cacheEntry{
		Provider:   providerID,
		SourcePath: ref.Path,
		Size:       ref.Size,
		MtimeNs:    ref.Mtime,
		Sessions:   sessions,
	}
}

// Drop removes entries whose source no longer exists, keyed by the
// set of currently live source paths per provider.
func (c *DiskCache) Drop(live map[string]bool) {
	if !c.enabled {
		return
	}
	for key, entry := range c.entries {
		if !live[cacheKey(entry.Provider, entry.SourcePath)] {
			delete(c.entries, key)
		}
	}
}

// Persist writes the cache atomically via a temp file rename. A
// failed write disables the cache so later refreshes do not keep
// retrying an unwritable directory.
func (c *DiskCache) Persist() {
	if !c.enabled {
		return
	}
	payload := cacheFile{
		Version:   cacheVersion,
		UpdatedAt: time.Now().UTC(),
		Entries:   make([]cacheEntry, 0, len(c.entries)),
	}
	for _, entry := range c.entries {
		payload.Entries = append(payload.Entries, entry)
	}

	if err := c.write(payload); err != nil {
		log.Printf("disk cache: disabling after write failure: %v", err)
		c.enabled = false
	}
}

func (c *DiskCache) write(payload cacheFile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
