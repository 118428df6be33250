package session

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// State is the typing state of a session.
type State int

const (
	// Idle means the local buffer has nothing waiting to be committed.
	Idle State = iota
	// Typing means an edit arrived and its save is being scheduled.
	Typing
	// SaveScheduled means a debounced save is pending.
	SaveScheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Typing:
		return "typing"
	case SaveScheduled:
		return "save_scheduled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// fingerprint is the content hash compared against knownHash.
func fingerprint(text string) uint64 {
	return xxhash.Sum64String(text)
}

// PollResult is what a caller gets back from Poll.
type PollResult struct {
	// TextChanged reports that remote text replaced the local buffer.
	TextChanged     bool      `json:"text_changed"`
	Text            string    `json:"text"`
	Version         int64     `json:"version"`
	ActiveUserCount int       `json:"active_user_count"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	State           State     `json:"state"`
}

// Info is a read-only view of a session.
type Info struct {
	Key                 string     `json:"key"`
	ParticipantID       string     `json:"participant_id"`
	State               State      `json:"state"`
	IsTyping            bool       `json:"is_typing"`
	LocalText           string     `json:"local_text"`
	KnownVersion        int64      `json:"known_version"`
	KnownHash           uint64     `json:"known_hash"`
	PendingSaveDeadline *time.Time `json:"pending_save_deadline,omitempty"`
	LastSyncedAt        time.Time  `json:"last_synced_at"`
	Closed              bool       `json:"closed"`
}
