package store

import "time"

// Document is a point-in-time copy of a stored document.
type Document struct {
	Key        string    `json:"key"`
	Text       string    `json:"text"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// record is the mutable state behind a key. It is only touched while the
// owning shard of DocumentStore.docs is locked.
type record struct {
	text       string
	version    int64
	createdAt  time.Time
	modifiedAt time.Time
}

func (r *record) snapshot(key string) Document {
	return Document{
		Key:        key,
		Text:       r.text,
		Version:    r.version,
		CreatedAt:  r.createdAt,
		ModifiedAt: r.modifiedAt,
	}
}
