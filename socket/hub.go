package socket

import (
	"context"
	"encoding/json"
	"livecollab/internal/document/service"
	"livecollab/internal/session"
	"livecollab/pkg/logger"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EditType  = "EDIT"  // Client replaced its buffer
	BlurType  = "BLUR"  // Client lost focus, flush now
	SyncType  = "SYNC"  // Server poll result
	ErrorType = "ERROR" // Server rejected a frame
)

const DefaultPollInterval = 200 * time.Millisecond

type WSMessage struct {
	Type          string              `json:"type"`
	DocID         string              `json:"document_id,omitempty"`
	ParticipantID string              `json:"participant_id,omitempty"`
	Text          *string             `json:"text,omitempty"`
	Sync          *session.PollResult `json:"sync,omitempty"`
	Message       string              `json:"message,omitempty"`
}

type Hub struct {
	Rooms        map[string]map[*Client]bool
	Register     chan *Client
	Unregister   chan *Client
	Service      *service.DocumentService
	PollInterval time.Duration
	mu           sync.Mutex
	done         chan struct{}
}

type Client struct {
	Hub           *Hub
	Conn          *websocket.Conn
	DocID         string
	ParticipantID string
	// Session is bound by Run when the client registers.
	Session *session.Session
	Send    chan []byte

	// mu guards what this connection last typed or was shown, so tabs
	// sharing a participant still get each other's text.
	mu        sync.Mutex
	lastText  string
	lastCount int
}

func NewHub(svc *service.DocumentService, pollInterval time.Duration) *Hub {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Hub{
		Rooms:        make(map[string]map[*Client]bool),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		Service:      svc,
		PollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			// Opening here orders it against a queued Unregister of the same
			// participant, so a reloaded tab never inherits a closed session.
			client.Session, _ = h.Service.OpenSession(client.DocID, client.ParticipantID)

			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
			}
			h.Rooms[client.DocID][client] = true
			h.mu.Unlock()

			// The joining client gets the full document state right away.
			res := client.Session.Poll(h.Service.Clock.Now())
			client.mu.Lock()
			client.lastText = res.Text
			client.lastCount = res.ActiveUserCount
			client.mu.Unlock()
			client.queue(WSMessage{
				Type:          SyncType,
				DocID:         client.DocID,
				ParticipantID: client.ParticipantID,
				Sync:          &res,
			})

			go client.writePump()
			go client.readPump()

		case client := <-h.Unregister:
			h.mu.Lock()
			room := h.Rooms[client.DocID]
			if _, ok := room[client]; !ok {
				h.mu.Unlock()
				continue
			}
			delete(room, client)
			close(client.Send)

			// Another tab may share the participant's session.
			shared := false
			for other := range room {
				if other.ParticipantID == client.ParticipantID {
					shared = true
					break
				}
			}
			if len(room) == 0 {
				delete(h.Rooms, client.DocID)
				logger.Sugar.Infof("Closed empty room: %s", client.DocID)
			}
			h.mu.Unlock()

			if !shared {
				// Flushes a pending edit and drops the presence entry.
				_ = h.Service.CloseSession(client.DocID, client.ParticipantID)
			}

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, room := range h.Rooms {
				for client := range room {
					client.Conn.Close() // readPump exits and the session is flushed by Registry.CloseAll
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// unregister hands the client back to Run, unless Run has already stopped.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// RoomSize returns the number of connections on a document.
func (h *Hub) RoomSize(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[docID])
}

// queue hands a message to the client's writePump without blocking.
func (c *Client) queue(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", msg.Type, err)
		return
	}
	select {
	case c.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping %s.", c.ParticipantID, msg.Type)
	}
}
