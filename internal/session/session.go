// Package session implements the per-participant synchronization state
// machine: local edits are debounced and committed to the document store,
// and a caller-driven Poll pulls remote text unless the participant is typing.
package session

import (
	"sync"
	"time"

	"livecollab/pkg/clock"
	"livecollab/pkg/logger"
	"livecollab/pkg/metrics"
	"livecollab/store"
)

const (
	DefaultDebounceInterval = 500 * time.Millisecond
	DefaultLivenessWindow   = 3 * time.Second
)

// DocumentStore is the part of store.DocumentStore a session needs.
type DocumentStore interface {
	Get(key string) store.Document
	Commit(key, text string) int64
}

// PresenceTracker is the part of presence.Tracker a session needs.
type PresenceTracker interface {
	Heartbeat(key, participantID string, now time.Time)
	ActiveCount(key string, now time.Time, window time.Duration) int
	Leave(key, participantID string)
}

// Config holds the timing parameters of a session.
type Config struct {
	DebounceInterval time.Duration
	LivenessWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = DefaultDebounceInterval
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = DefaultLivenessWindow
	}
	return c
}

// Option configures a Session or a Registry.
type Option func(*options)

type options struct {
	clock   clock.Clock
	metrics *metrics.Metrics
}

// WithClock sets the clock used for debounce deadlines.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics sets where commits and polls are recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// saveHandle is a revocable pending save. A fired timer only saves if its
// handle is still the session's pending one.
type saveHandle struct {
	timer    clock.Timer
	deadline time.Time
}

// Session is one participant's view of one document.
type Session struct {
	key           string
	participantID string

	docs     DocumentStore
	presence PresenceTracker
	clock    clock.Clock
	metrics  *metrics.Metrics
	cfg      Config

	mu           sync.Mutex
	state        State
	localText    string
	knownVersion int64
	knownHash    uint64
	lastSyncedAt time.Time
	pending      *saveHandle
	closed       bool
}

// New opens a session on key and loads the current text into its buffer.
func New(key, participantID string, docs DocumentStore, tracker PresenceTracker, cfg Config, opts ...Option) *Session {
	o := buildOptions(opts)
	s := &Session{
		key:           key,
		participantID: participantID,
		docs:          docs,
		presence:      tracker,
		clock:         o.clock,
		metrics:       o.metrics,
		cfg:           cfg.withDefaults(),
	}

	doc := docs.Get(key)
	s.localText = doc.Text
	s.knownVersion = doc.Version
	s.knownHash = fingerprint(doc.Text)
	s.lastSyncedAt = s.clock.Now()
	return s
}

// Key returns the document key.
func (s *Session) Key() string {
	return s.key
}

// ParticipantID returns the participant this session belongs to.
func (s *Session) ParticipantID() string {
	return s.participantID
}

// OnLocalEdit replaces the local buffer and (re)starts the debounce timer.
func (s *Session) OnLocalEdit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Sugar.Warnf("edit on closed session %s/%s ignored", s.key, s.participantID)
		return
	}

	s.state = Typing
	s.localText = text
	s.cancelPendingLocked()

	h := &saveHandle{deadline: s.clock.Now().Add(s.cfg.DebounceInterval)}
	h.timer = s.clock.AfterFunc(s.cfg.DebounceInterval, func() { s.fire(h) })
	s.pending = h
	s.state = SaveScheduled
}

// OnBlur commits any pending edit right away.
func (s *Session) OnBlur() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state == Idle {
		return
	}
	s.cancelPendingLocked()
	s.saveLocked(metrics.TriggerBlur)
}

// Poll refreshes this participant's heartbeat and pulls remote text unless
// the participant is typing.
func (s *Session) Poll(now time.Time) PollResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.resultLocked(0)
	}

	s.presence.Heartbeat(s.key, s.participantID, now)
	count := s.presence.ActiveCount(s.key, now, s.cfg.LivenessWindow)

	if s.state != Idle {
		s.metrics.AddPoll(metrics.PollTyping)
		return s.resultLocked(count)
	}

	doc := s.docs.Get(s.key)
	s.lastSyncedAt = now
	if doc.Version <= s.knownVersion {
		s.metrics.AddPoll(metrics.PollUpToDate)
		return s.resultLocked(count)
	}

	hash := fingerprint(doc.Text)
	if hash == s.knownHash {
		s.knownVersion = doc.Version
		s.metrics.AddPoll(metrics.PollSameText)
		return s.resultLocked(count)
	}

	s.localText = doc.Text
	s.knownVersion = doc.Version
	s.knownHash = hash
	s.metrics.AddPoll(metrics.PollApplied)
	logger.Sugar.Debugf("session %s/%s pulled version %d", s.key, s.participantID, doc.Version)

	res := s.resultLocked(count)
	res.TextChanged = true
	return res
}

// Close flushes a pending edit, forgets the participant's presence and
// makes every further call a no-op. Closing twice is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.state != Idle {
		s.cancelPendingLocked()
		s.saveLocked(metrics.TriggerClose)
	}
	s.presence.Leave(s.key, s.participantID)
	s.closed = true
}

// IsClosed reports whether Close was called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Text returns the local buffer.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localText
}

// Info returns a copy of the session state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Key:           s.key,
		ParticipantID: s.participantID,
		State:         s.state,
		IsTyping:      s.state != Idle,
		LocalText:     s.localText,
		KnownVersion:  s.knownVersion,
		KnownHash:     s.knownHash,
		LastSyncedAt:  s.lastSyncedAt,
		Closed:        s.closed,
	}
	if s.pending != nil {
		deadline := s.pending.deadline
		info.PendingSaveDeadline = &deadline
	}
	return info
}

func (s *Session) fire(h *saveHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Revoked or superseded while the timer was firing.
	if s.pending != h || s.closed {
		return
	}
	s.pending = nil
	s.saveLocked(metrics.TriggerTimer)
}

// cancelPendingLocked revokes the pending save, if any.
func (s *Session) cancelPendingLocked() {
	if s.pending == nil {
		return
	}
	s.pending.timer.Stop()
	s.pending = nil
}

func (s *Session) saveLocked(trigger string) {
	version := s.docs.Commit(s.key, s.localText)
	s.knownVersion = version
	s.knownHash = fingerprint(s.localText)
	s.lastSyncedAt = s.clock.Now()
	s.state = Idle
	s.metrics.AddCommit(trigger)

	logger.Sugar.Debugf("session %s/%s committed version %d (%s)", s.key, s.participantID, version, trigger)
}

func (s *Session) resultLocked(count int) PollResult {
	return PollResult{
		Text:            s.localText,
		Version:         s.knownVersion,
		ActiveUserCount: count,
		LastSyncedAt:    s.lastSyncedAt,
		State:           s.state,
	}
}
