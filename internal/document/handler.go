package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"livecollab/internal/document/model"
	"livecollab/internal/document/service"
	"livecollab/internal/session"
	"livecollab/pkg/logger"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxImportBytes bounds the body of an import request.
const maxImportBytes = 8 << 20

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

type createDocRequest struct {
	Name string `json:"name"`
}

// CreateDocument turns a free-form name into a document key and creates it.
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, default name

	key := service.SanitizeKey(req.Name)
	doc := h.Service.Store.Get(key)

	writeJSON(w, http.StatusOK, model.VersionResponse{DocumentKey: key, Version: doc.Version})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.ListDocuments())
}

func (h *DocumentHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req model.OpenSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	sess, created := h.Service.OpenSession(key, req.ParticipantID)
	info := sess.Info()

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, model.OpenSessionResponse{
		DocumentKey:   key,
		ParticipantID: sess.ParticipantID(),
		Text:          info.LocalText,
		Version:       info.KnownVersion,
		Created:       created,
	})
}

func (h *DocumentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req model.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess.OnLocalEdit(*req.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (h *DocumentHandler) Blur(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	sess.OnBlur()
	info := sess.Info()
	writeJSON(w, http.StatusOK, model.VersionResponse{DocumentKey: info.Key, Version: info.KnownVersion})
}

func (h *DocumentHandler) Poll(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	res := sess.Poll(h.Service.Clock.Now())
	writeJSON(w, http.StatusOK, model.PollResponse{DocumentKey: sess.Key(), PollResult: res})
}

func (h *DocumentHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	participantID := chi.URLParam(r, "participantID")

	if err := h.Service.CloseSession(key, participantID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Participants(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, model.ParticipantsResponse{DocumentKey: key, Participants: h.Service.Participants(key)})
}

func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data := h.Service.ExportText(key)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key+".txt"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Sugar.Errorf("Handler: Failed to write export of doc %s: %v", key, err)
	}
}

func (h *DocumentHandler) Import(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	version, err := h.Service.ImportText(key, data)
	if err != nil {
		var importErr *service.ImportError
		if errors.As(err, &importErr) {
			http.Error(w, importErr.Error(), http.StatusUnprocessableEntity)
			return
		}
		logger.Sugar.Errorf("Handler: Failed to import doc %s: %v", key, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.VersionResponse{DocumentKey: key, Version: version})
}

func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	version := h.Service.ClearDocument(key)
	writeJSON(w, http.StatusOK, model.VersionResponse{DocumentKey: key, Version: version})
}

func (h *DocumentHandler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	key := chi.URLParam(r, "key")
	participantID := chi.URLParam(r, "participantID")

	sess, err := h.Service.Session(key, participantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Handler: Failed to encode response: %v", err)
	}
}
