package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/chat"
	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/registrations"
	"github.com/nexstream/backend/internal/webinars"
	"github.com/nexstream/backend/pkg/response"
)

// Events sent to clients besides the snapshot events of the domain packages.
const (
	EventCertificateUnlocked = "certificate_unlocked"
	EventError               = "error"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID
	Role   models.Role
	Topics []string

	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, identity *models.Identity, topics []string, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: identity.UserID,
		Role:   identity.Role,
		Topics: topics,
		hub:    hub,
		conn:   conn,
		send:   make(chan WSMessage, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Client) deliver(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		// buffer full, skip
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.deliver(WSMessage{Event: event, Data: data})
}

// Close ends the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func topicsFor(identity *models.Identity, webinarID uuid.UUID) []string {
	topics := []string{webinars.TopicCatalog, registrations.UserTopic(identity.UserID)}
	if identity.Role == models.RoleHost || identity.Role == models.RoleAdmin {
		topics = append(topics, webinars.HostTopic(identity.UserID))
	}
	if webinarID != uuid.Nil {
		topics = append(topics, chat.Topic(webinarID))
	}
	return topics
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}

// ServeWs upgrades an authenticated request and runs the client loop. With ?webinar_id the
// connection also joins that webinar's room, gets its chat snapshot and, for registered
// students, opens a viewing session that accrues attendance and unlocks the certificate.
func ServeWs(hub *Hub, viewer *Viewer, origins []string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := newUpgrader(origins)
	return func(c *gin.Context) {
		identity := middleware.CurrentIdentity(c)
		if identity == nil {
			response.Unauthorized(c, "token required")
			return
		}
		var webinarID uuid.UUID
		if raw := c.Query("webinar_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.BadRequest(c, "invalid webinar_id")
				return
			}
			webinarID = id
		}

		var room *Room
		if webinarID != uuid.Nil {
			r, err := viewer.Join(c.Request.Context(), identity, webinarID)
			if err != nil {
				response.Error(c, err)
				return
			}
			room = r
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(hub, conn, identity, topicsFor(identity, webinarID), logger)
		hub.Register(client)

		ctx, cancel := context.WithCancel(context.Background())
		if room != nil {
			client.sendEvent(chat.EventSnapshot, room.Snapshot)
			if err := viewer.Open(ctx, room); err != nil {
				logger.Warn("viewing session not opened", zap.String("webinar_id", webinarID.String()), zap.Error(err))
				client.sendEvent(EventError, gin.H{"error": response.MessageFor(err)})
			}
			if room.viewing != nil {
				go viewer.Watch(ctx, room.viewing)
			}
		}
		go client.writePump()
		client.readPump(ctx, viewer, room)
		cancel()
	}
}

type visibilityEvent struct {
	Visible bool `json:"visible"`
}

type progressEvent struct {
	Percentage float64 `json:"percentage"`
}

func (c *Client) readPump(ctx context.Context, viewer *Viewer, room *Room) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		if room == nil || room.viewing == nil {
			continue
		}
		switch msg.Event {
		case "visibility":
			var ev visibilityEvent
			if json.Unmarshal(msg.Data, &ev) == nil {
				room.viewing.session.SetVisible(ev.Visible)
			}
		case "progress":
			var ev progressEvent
			if json.Unmarshal(msg.Data, &ev) != nil {
				continue
			}
			res, err := viewer.Progress(ctx, room.viewing, ev.Percentage)
			if err != nil {
				c.sendEvent(EventError, gin.H{"error": response.MessageFor(err)})
				continue
			}
			if res != nil {
				c.sendEvent(EventCertificateUnlocked, res)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
