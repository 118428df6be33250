package socket

import (
	"encoding/json"
	"livecollab/internal/session"
	"livecollab/pkg/logger"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 8 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		participantID = session.NewParticipantID()
	}

	client := &Client{
		Hub:           hub,
		Conn:          conn,
		DocID:         docID,
		ParticipantID: participantID,
		Send:          make(chan []byte, 256),
	}

	// Run binds the session and starts the pumps.
	select {
	case hub.Register <- client:
	case <-hub.done:
		conn.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			c.queue(WSMessage{Type: ErrorType, Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case EditType:
			if msg.Text == nil {
				c.queue(WSMessage{Type: ErrorType, Message: "EDIT requires text"})
				continue
			}
			c.mu.Lock()
			c.Session.OnLocalEdit(*msg.Text)
			c.lastText = *msg.Text
			c.mu.Unlock()
		case BlurType:
			c.Session.OnBlur()
		default:
			logger.Sugar.Warnf("Unknown message type %q from %s", msg.Type, c.ParticipantID)
			c.queue(WSMessage{Type: ErrorType, Message: "unknown message type"})
		}
	}
}

// writePump owns every write to the connection. It also drives the
// session's poll loop and pushes a SYNC whenever text or presence changed.
func (c *Client) writePump() {
	pollTicker := time.NewTicker(c.Hub.PollInterval)
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pollTicker.Stop()
		pingTicker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case now := <-pollTicker.C:
			payload, changed := c.poll(now)
			if !changed {
				continue
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-pingTicker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

// poll runs the session's poll and returns a SYNC frame when the text or the
// active count differs from what this connection last typed or was shown.
func (c *Client) poll(now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.Session.Poll(now)
	if !res.TextChanged && res.Text == c.lastText && res.ActiveUserCount == c.lastCount {
		return nil, false
	}

	payload, err := json.Marshal(WSMessage{
		Type:          SyncType,
		DocID:         c.DocID,
		ParticipantID: c.ParticipantID,
		Sync:          &res,
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling sync: %v", err)
		return nil, false
	}
	c.lastText = res.Text
	c.lastCount = res.ActiveUserCount
	return payload, true
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}
