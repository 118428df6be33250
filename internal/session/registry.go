package session

import (
	"sync"

	"github.com/google/uuid"

	"livecollab/pkg/logger"
)

type sessionKey struct {
	docKey        string
	participantID string
}

// Registry hands out one Session per (document, participant).
type Registry struct {
	docs     DocumentStore
	presence PresenceTracker
	cfg      Config
	opts     []Option
	o        options

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry creates a Registry whose sessions share docs and tracker.
func NewRegistry(docs DocumentStore, tracker PresenceTracker, cfg Config, opts ...Option) *Registry {
	return &Registry{
		docs:     docs,
		presence: tracker,
		cfg:      cfg.withDefaults(),
		opts:     opts,
		o:        buildOptions(opts),
		sessions: make(map[sessionKey]*Session),
	}
}

// NewParticipantID generates a participant ID.
func NewParticipantID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}

// Open returns the session of participantID on docKey, creating it if needed.
// An empty participantID gets a generated one. created reports whether a
// new session was made.
func (r *Registry) Open(docKey, participantID string) (s *Session, created bool) {
	if participantID == "" {
		participantID = NewParticipantID()
	}
	k := sessionKey{docKey: docKey, participantID: participantID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[k]; ok && !existing.IsClosed() {
		return existing, false
	}

	s = New(docKey, participantID, r.docs, r.presence, r.cfg, r.opts...)
	r.sessions[k] = s
	r.o.metrics.SetOpenSessions(len(r.sessions))
	logger.Sugar.Infof("opened session %s on document %s", participantID, docKey)
	return s, true
}

// Lookup returns an open session.
func (r *Registry) Lookup(docKey, participantID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey{docKey: docKey, participantID: participantID}]
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// Close closes and forgets a session. It reports whether one was open.
func (r *Registry) Close(docKey, participantID string) bool {
	k := sessionKey{docKey: docKey, participantID: participantID}

	r.mu.Lock()
	s, ok := r.sessions[k]
	delete(r.sessions, k)
	r.o.metrics.SetOpenSessions(len(r.sessions))
	r.mu.Unlock()

	if !ok {
		return false
	}
	wasOpen := !s.IsClosed()
	s.Close()
	logger.Sugar.Infof("closed session %s on document %s", participantID, docKey)
	return wasOpen
}

// CloseAll closes every session, flushing pending edits.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[sessionKey]*Session)
	r.o.metrics.SetOpenSessions(0)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
