package store

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kmladek/agentsessions/internal/provider"
	"github.com/kmladek/agentsessions/internal/session"
)

// maxScanWorkers bounds concurrent provider scans during a refresh.
const maxScanWorkers = 4

// Snapshot is one immutable view of every known session. Readers
// hold a snapshot for the duration of a request; a refresh never
// mutates a published snapshot.
type Snapshot struct {
	Sessions    []*session.Session
	ByKey       map[session.Key]*session.Session
	RefreshedAt time.Time
	Failures    []provider.ParseFailure

	// sources carries the staleness key and parsed sessions per
	// source path so the next refresh can reuse unchanged work.
	sources map[string]sourceEntry
}

type sourceEntry struct {
	ref      provider.SourceRef
	provider string
	sessions []*session.Session
}

// Get returns the session with the given identity, or nil.
func (s *Snapshot) Get(providerID, sessionID string) *session.Session {
	return s.ByKey[session.Key{Provider: providerID, ID: sessionID}]
}

// RefreshStats summarizes one refresh pass.
type RefreshStats struct {
	Sources      int
	Parsed       int
	Reused       int
	FromDisk     int
	Failed       int
	MissingRoots int
	Elapsed      time.Duration
}

// Store owns the snapshot and the refresh lifecycle.
type Store struct {
	providers []provider.Provider
	roots     map[string][]string // provider ID -> scan roots
	interval  time.Duration
	disk      *DiskCache

	current atomic.Pointer[Snapshot]

	// refreshMu serializes refreshes; ticks that arrive while one
	// is running are skipped instead of queueing.
	refreshMu sync.Mutex

	statsMu   sync.Mutex
	lastStats RefreshStats
}

// New creates a store scanning the given roots per provider ID.
// The disk cache is loaded immediately; call RefreshNow to populate
// the first snapshot.
func New(
	providers []provider.Provider,
	roots map[string][]string,
	interval time.Duration,
	disk *DiskCache,
) *Store {
	if disk == nil {
		disk = NewDiskCache("", false)
	}
	disk.Load()

	s := &Store{
		providers: providers,
		roots:     roots,
		interval:  interval,
		disk:      disk,
	}
	s.current.Store(&Snapshot{
		ByKey:   make(map[session.Key]*session.Session),
		sources: make(map[string]sourceEntry),
	})
	return s
}

// Snapshot returns the current snapshot. Never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// LastStats returns statistics from the most recent refresh.
func (s *Store) LastStats() RefreshStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.lastStats
}

// Run refreshes periodically until ctx is cancelled. A tick that
// fires while a refresh is still running is dropped.
func (s *Store) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.refreshMu.TryLock() {
				continue
			}
			s.refreshLocked(ctx)
			s.refreshMu.Unlock()
		}
	}
}

// RefreshNow runs a full refresh synchronously. Concurrent callers
// serialize; each gets a snapshot at least as fresh as its call.
func (s *Store) RefreshNow(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.refreshLocked(ctx)
}

type scanResult struct {
	provider     string
	entries      []sourceEntry
	failures     []provider.ParseFailure
	parsed       int
	reused       int
	fromDisk     int
	missingRoots int
}

func (s *Store) refreshLocked(ctx context.Context) {
	start := time.Now()
	prev := s.current.Load()

	results := make([]scanResult, len(s.providers))
	var g errgroup.Group
	g.SetLimit(maxScanWorkers)
	for i, p := range s.providers {
		g.Go(func() error {
			results[i] = s.scanProvider(ctx, p, prev)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return // cancelled mid-scan; keep the prior snapshot
	}

	next := &Snapshot{
		ByKey:       make(map[session.Key]*session.Session),
		RefreshedAt: time.Now().UTC(),
		sources:     make(map[string]sourceEntry),
	}
	stats := RefreshStats{}
	live := make(map[string]bool)

	for _, res := range results {
		stats.Parsed += res.parsed
		stats.Reused += res.reused
		stats.FromDisk += res.fromDisk
		stats.Failed += len(res.failures)
		stats.MissingRoots += res.missingRoots
		next.Failures = append(next.Failures, res.failures...)

		for _, entry := range res.entries {
			stats.Sources++
			next.sources[entry.ref.Path] = entry
			live[cacheKey(entry.provider, entry.ref.Path)] = true
			s.disk.Store(entry.provider, entry.ref, entry.sessions)
			for _, sess := range entry.sessions {
				key := sess.Key()
				// The same conversation can surface from several
				// sources (a transcript and the relational store);
				// merge instead of listing it twice.
				if existing, ok := next.ByKey[key]; ok {
					next.ByKey[key] = session.Merge(existing, sess)
					continue
				}
				next.ByKey[key] = sess
			}
		}
	}

	next.Sessions = make([]*session.Session, 0, len(next.ByKey))
	for _, sess := range next.ByKey {
		next.Sessions = append(next.Sessions, sess)
	}
	sort.Slice(next.Sessions, func(i, j int) bool {
		return session.Less(next.Sessions[i], next.Sessions[j])
	})

	s.current.Store(next)

	s.disk.Drop(live)
	s.disk.Persist()

	stats.Elapsed = time.Since(start)
	s.statsMu.Lock()
	s.lastStats = stats
	s.statsMu.Unlock()

	if stats.Parsed > 0 || stats.Failed > 0 {
		log.Printf(
			"refresh: %d source(s), %d parsed, %d reused, %d from disk, %d failed in %s",
			stats.Sources, stats.Parsed, stats.Reused,
			stats.FromDisk, stats.Failed,
			stats.Elapsed.Round(time.Millisecond),
		)
	}
}

// scanProvider discovers one provider's sources and parses the ones
// whose staleness key changed, reusing prior work for the rest.
func (s *Store) scanProvider(
	ctx context.Context, p provider.Provider, prev *Snapshot,
) scanResult {
	res := scanResult{provider: p.ID()}

	// Absent roots are normal (tool not installed); count them so
	// health reporting can distinguish "no sessions" from "no root".
	for _, root := range s.roots[p.ID()] {
		if _, err := os.Stat(root); err != nil {
			res.missingRoots++
		}
	}

	refs := p.Discover(s.roots[p.ID()])
	for _, ref := range refs {
		if ctx.Err() != nil {
			return res
		}

		if prior, ok := prev.sources[ref.Path]; ok &&
			prior.ref == ref && prior.provider == p.ID() {
			res.entries = append(res.entries, prior)
			res.reused++
			continue
		}

		if cached, ok := s.disk.Lookup(p.ID(), ref); ok {
			res.entries = append(res.entries, sourceEntry{
				ref: ref, provider: p.ID(), sessions: cached,
			})
			res.fromDisk++
			continue
		}

		sessions, err := p.Parse(ref)
		if err != nil {
			res.failures = append(res.failures, provider.ParseFailure{
				Provider: p.ID(),
				Path:     ref.Path,
				Reason:   err.Error(),
			})
			// Keep the last good sessions for this source. The
			// entry carries its old staleness key, so the next
			// refresh retries the read.
			if prior, ok := prev.sources[ref.Path]; ok &&
				prior.provider == p.ID() {
				res.entries = append(res.entries, prior)
				res.reused++
			}
			continue
		}
		// Sources that yield no sessions still get an entry so
		// later refreshes do not re-parse them.
		res.parsed++
		res.entries = append(res.entries, sourceEntry{
			ref: ref, provider: p.ID(), sessions: sessions,
		})
	}
	return res
}
