// Package presence tracks which participants are looking at a document.
//
// A participant is present while its last heartbeat is younger than the
// liveness window. Stale entries are removed on the next count for their
// document; there is no "left" state.
package presence

import (
	"context"
	"time"

	"livecollab/pkg/cmap"
	"livecollab/pkg/logger"
)

// Tracker holds heartbeat timestamps per (document, participant).
type Tracker struct {
	// docs maps a document key to participantID -> lastSeen. The inner map
	// is only read or written inside a cmap callback.
	docs *cmap.Map[string, map[string]time.Time]
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{docs: cmap.New[string, map[string]time.Time]()}
}

// Heartbeat records that participantID was seen on key at now.
func (t *Tracker) Heartbeat(key, participantID string, now time.Time) {
	t.docs.Upsert(key, func(entries map[string]time.Time, exists bool) map[string]time.Time {
		if !exists {
			entries = make(map[string]time.Time)
		}
		entries[participantID] = now
		return entries
	})
}

// ActiveCount evicts entries of key whose heartbeat is at least window old and
// returns how many remain.
func (t *Tracker) ActiveCount(key string, now time.Time, window time.Duration) int {
	count := 0
	t.docs.Delete(key, func(entries map[string]time.Time, exists bool) bool {
		if !exists {
			return false
		}
		evictStale(entries, now, window)
		count = len(entries)
		return count == 0
	})
	return count
}

// Leave drops participantID from key immediately.
func (t *Tracker) Leave(key, participantID string) {
	t.docs.Delete(key, func(entries map[string]time.Time, exists bool) bool {
		if !exists {
			return false
		}
		delete(entries, participantID)
		return len(entries) == 0
	})
}

// Participants returns the live participant IDs of key without evicting.
func (t *Tracker) Participants(key string, now time.Time, window time.Duration) []string {
	var ids []string
	t.docs.View(key, func(entries map[string]time.Time, exists bool) {
		for id, seen := range entries {
			if now.Sub(seen) < window {
				ids = append(ids, id)
			}
		}
	})
	return ids
}

// Sweep evicts stale entries across every document and returns how many
// entries were removed.
func (t *Tracker) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	for _, key := range t.docs.Keys() {
		t.docs.Delete(key, func(entries map[string]time.Time, exists bool) bool {
			if !exists {
				return false
			}
			removed += evictStale(entries, now, window)
			return len(entries) == 0
		})
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (t *Tracker) RunSweeper(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := t.Sweep(now, window); n > 0 {
				logger.Sugar.Debugf("presence sweep evicted %d stale entries", n)
			}
		}
	}
}

func evictStale(entries map[string]time.Time, now time.Time, window time.Duration) int {
	removed := 0
	for id, seen := range entries {
		if now.Sub(seen) >= window {
			delete(entries, id)
			removed++
		}
	}
	return removed
}
