package service

import (
	"context"
	"livecollab/internal/document/model"
	"livecollab/internal/presence"
	"livecollab/internal/session"
	"livecollab/pkg/clock"
	"livecollab/pkg/logger"
	"livecollab/pkg/metrics"
	"livecollab/store"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	previewRunes = 100
	defaultKey   = "default"
)

// Archiver receives snapshots of documents that changed.
type Archiver interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

type DocumentService struct {
	Store          *store.DocumentStore
	Presence       *presence.Tracker
	Sessions       *session.Registry
	Archive        Archiver
	Metrics        *metrics.Metrics
	Clock          clock.Clock
	LivenessWindow time.Duration

	archiveMu sync.Mutex
	archived  map[string]int64
}

func NewDocumentService(st *store.DocumentStore, tracker *presence.Tracker, sessions *session.Registry, livenessWindow time.Duration) *DocumentService {
	return &DocumentService{
		Store:          st,
		Presence:       tracker,
		Sessions:       sessions,
		Clock:          clock.Real(),
		LivenessWindow: livenessWindow,
		archived:       make(map[string]int64),
	}
}

func (s *DocumentService) OpenSession(key, participantID string) (*session.Session, bool) {
	return s.Sessions.Open(key, participantID)
}

func (s *DocumentService) Session(key, participantID string) (*session.Session, error) {
	sess, ok := s.Sessions.Lookup(key, participantID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *DocumentService) CloseSession(key, participantID string) error {
	if !s.Sessions.Close(key, participantID) {
		return ErrSessionNotFound
	}
	return nil
}

// ListDocuments summarizes every document, most recently modified first.
func (s *DocumentService) ListDocuments() []model.DocumentSummary {
	now := s.Clock.Now()
	docs := s.Store.List()

	summaries := make([]model.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, model.DocumentSummary{
			Key:             doc.Key,
			Version:         doc.Version,
			ModifiedAt:      doc.ModifiedAt,
			ActiveUserCount: s.Presence.ActiveCount(doc.Key, now, s.LivenessWindow),
			TextPreview:     preview(doc.Text),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].ModifiedAt.Equal(summaries[j].ModifiedAt) {
			return summaries[i].Key < summaries[j].Key
		}
		return summaries[i].ModifiedAt.After(summaries[j].ModifiedAt)
	})
	return summaries
}

// Participants lists who is live on key, sorted by ID.
func (s *DocumentService) Participants(key string) []string {
	ids := s.Presence.Participants(key, s.Clock.Now(), s.LivenessWindow)
	if ids == nil {
		ids = []string{}
	}
	sort.Strings(ids)
	return ids
}

func (s *DocumentService) ExportText(key string) []byte {
	return []byte(s.Store.Get(key).Text)
}

// ImportText replaces the document with data in a single commit.
func (s *DocumentService) ImportText(key string, data []byte) (int64, error) {
	if !utf8.Valid(data) {
		s.Metrics.AddImportFailure()
		err := &ImportError{DocumentKey: key, Offset: invalidOffset(data), Err: ErrInvalidEncoding}
		logger.Sugar.Warnf("Rejected import: %v", err)
		return 0, err
	}

	version := s.Store.Commit(key, string(data))
	s.Metrics.AddCommit(metrics.TriggerImport)
	logger.Sugar.Infof("Imported %d bytes into doc %s (version %d)", len(data), key, version)
	return version, nil
}

func (s *DocumentService) ClearDocument(key string) int64 {
	version := s.Store.Clear(key)
	s.Metrics.AddCommit(metrics.TriggerClear)
	logger.Sugar.Infof("Cleared doc %s (version %d)", key, version)
	return version
}

// SanitizeKey turns a free-form document name into a key made of letters,
// digits, '-' and '_'.
func SanitizeKey(name string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return defaultKey
	}
	return sb.String()
}

// ArchiveWorker snapshots changed documents every interval until ctx is done.
func (s *DocumentService) ArchiveWorker(ctx context.Context, interval time.Duration) {
	if s.Archive == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final pass so the last edits make it out.
			s.ArchiveChanged(context.Background())
			return
		case <-ticker.C:
			s.ArchiveChanged(ctx)
		}
	}
}

// ArchiveChanged writes every document whose version moved since its last
// successful archive and returns how many were written.
func (s *DocumentService) ArchiveChanged(ctx context.Context) int {
	if s.Archive == nil {
		return 0
	}

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	written := 0
	for _, doc := range s.Store.List() {
		if last, ok := s.archived[doc.Key]; ok && last >= doc.Version {
			continue
		}
		err := s.Archive.SaveSnapshot(ctx, model.Snapshot{
			Key:        doc.Key,
			Text:       doc.Text,
			Version:    doc.Version,
			ModifiedAt: doc.ModifiedAt,
		})
		if err != nil {
			// Left unmarked; retried on the next tick.
			continue
		}
		s.archived[doc.Key] = doc.Version
		written++
	}

	if written > 0 {
		s.Metrics.AddArchivedSnapshots(written)
		logger.Sugar.Infof("Archived %d document snapshot(s)", written)
	}
	return written
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "..."
}

func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}
