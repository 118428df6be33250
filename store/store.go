// Package store holds the authoritative text and version of every document.
//
// Documents are created on first reference and live for the lifetime of the
// process. Commit is the only write path: it always succeeds, always bumps the
// version by one and never checks what the writer last saw, so the last commit
// to complete wins.
package store

import (
	"livecollab/pkg/clock"
	"livecollab/pkg/cmap"
)

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithClock sets the time source used for CreatedAt/ModifiedAt.
func WithClock(c clock.Clock) Option {
	return func(s *DocumentStore) {
		s.clock = c
	}
}

// DocumentStore is a concurrency-safe in-memory document map.
type DocumentStore struct {
	docs  *cmap.Map[string, *record]
	clock clock.Clock
}

// New creates an empty DocumentStore.
func New(opts ...Option) *DocumentStore {
	s := &DocumentStore{
		docs:  cmap.New[string, *record](),
		clock: clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current snapshot of key, creating an empty document at
// version 0 if the key has never been seen.
func (s *DocumentStore) Get(key string) Document {
	var doc Document
	s.docs.Upsert(key, func(rec *record, exists bool) *record {
		if !exists {
			now := s.clock.Now()
			rec = &record{createdAt: now, modifiedAt: now}
		}
		doc = rec.snapshot(key)
		return rec
	})
	return doc
}

// Commit replaces the text of key and returns the new version.
func (s *DocumentStore) Commit(key, text string) int64 {
	var version int64
	s.docs.Upsert(key, func(rec *record, exists bool) *record {
		now := s.clock.Now()
		if !exists {
			rec = &record{createdAt: now}
		}
		rec.text = text
		rec.version++
		rec.modifiedAt = now
		version = rec.version
		return rec
	})
	return version
}

// Clear empties key. It is a regular commit and bumps the version.
func (s *DocumentStore) Clear(key string) int64 {
	return s.Commit(key, "")
}

// Peek returns the snapshot of key without creating it.
func (s *DocumentStore) Peek(key string) (Document, bool) {
	var (
		doc   Document
		found bool
	)
	s.docs.View(key, func(rec *record, exists bool) {
		if exists {
			doc = rec.snapshot(key)
			found = true
		}
	})
	return doc, found
}

// List returns a snapshot of every document in no particular order.
func (s *DocumentStore) List() []Document {
	docs := make([]Document, 0, s.docs.Len())
	s.docs.Range(func(key string, rec *record) bool {
		docs = append(docs, rec.snapshot(key))
		return true
	})
	return docs
}

// Len returns the number of documents.
func (s *DocumentStore) Len() int {
	return s.docs.Len()
}
