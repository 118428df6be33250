package model

import (
	"time"

	"livecollab/internal/session"
)

type DocumentSummary struct {
	Key             string    `json:"key"`
	Version         int64     `json:"version"`
	ModifiedAt      time.Time `json:"modified_at"`
	ActiveUserCount int       `json:"active_user_count"`
	TextPreview     string    `json:"text_preview"`
}

type OpenSessionRequest struct {
	ParticipantID string `json:"participant_id"`
}

type OpenSessionResponse struct {
	DocumentKey   string `json:"document_key"`
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`
	Version       int64  `json:"version"`
	Created       bool   `json:"created"`
}

type EditRequest struct {
	Text *string `json:"text"`
}

type VersionResponse struct {
	DocumentKey string `json:"document_key"`
	Version     int64  `json:"version"`
}

type ParticipantsResponse struct {
	DocumentKey  string   `json:"document_key"`
	Participants []string `json:"participants"`
}

type PollResponse struct {
	DocumentKey string `json:"document_key"`
	session.PollResult
}

// Snapshot is an archived copy of a document at a given version.
type Snapshot struct {
	Key        string
	Text       string
	Version    int64
	ModifiedAt time.Time
}
