package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// EntrySnapshot aggregates all records sharing a kind and name.
type EntrySnapshot struct {
	Kind          string    `json:"kind"`
	Name          string    `json:"name"`
	Count         int64     `json:"count"`
	Errors        int64     `json:"errors"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	LastAt        time.Time `json:"last_at"`
}

// Snapshot is a point-in-time view of the collected statistics.
type Snapshot struct {
	StartedAt time.Time        `json:"started_at"`
	Totals    map[string]int64 `json:"totals"`
	Entries   []EntrySnapshot  `json:"entries"`
}

type entryStats struct {
	count      int64
	errors     int64
	durationMs int64
	lastAt     time.Time
}

// Stats is a plugin that aggregates usage records into counters served
// by the management API.
type Stats struct {
	mu        sync.Mutex
	startedAt time.Time
	entries   map[string]map[string]*entryStats
}

// NewStats constructs an empty statistics collector.
func NewStats() *Stats {
	return &Stats{
		startedAt: time.Now(),
		entries:   make(map[string]map[string]*entryStats),
	}
}

// HandleUsage implements Plugin.
func (s *Stats) HandleUsage(ctx context.Context, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.entries[record.Kind]
	if !ok {
		byName = make(map[string]*entryStats)
		s.entries[record.Kind] = byName
	}
	entry, ok := byName[record.Name]
	if !ok {
		entry = &entryStats{}
		byName[record.Name] = entry
	}
	entry.count++
	if !record.Success {
		entry.errors++
	}
	entry.durationMs += record.Duration.Milliseconds()
	at := record.RequestedAt
	if at.IsZero() {
		at = time.Now()
	}
	if at.After(entry.lastAt) {
		entry.lastAt = at
	}
}

// Snapshot returns the aggregated statistics, with entries ordered by
// kind and name.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		StartedAt: s.startedAt,
		Totals:    make(map[string]int64),
		Entries:   []EntrySnapshot{},
	}
	for kind, byName := range s.entries {
		for name, entry := range byName {
			snapshot.Totals[kind] += entry.count
			avg := int64(0)
			if entry.count > 0 {
				avg = entry.durationMs / entry.count
			}
			snapshot.Entries = append(snapshot.Entries, EntrySnapshot{
				Kind:          kind,
				Name:          name,
				Count:         entry.count,
				Errors:        entry.errors,
				AvgDurationMs: avg,
				LastAt:        entry.lastAt,
			})
		}
	}
	sort.Slice(snapshot.Entries, func(i, j int) bool {
		if snapshot.Entries[i].Kind != snapshot.Entries[j].Kind {
			return snapshot.Entries[i].Kind < snapshot.Entries[j].Kind
		}
		return snapshot.Entries[i].Name < snapshot.Entries[j].Name
	})
	return snapshot
}
