package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
	"github.com/aura-notes/backend/pkg/response"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MeetingGetter loads the current record for the snapshot.
type MeetingGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
}

// Subscriber delivers events published for one meeting.
type Subscriber interface {
	SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// ServeStatus handles GET /meetings/:id/events. It sends the current status, then every status
// event until the meeting reaches a terminal status or the client goes away.
func ServeStatus(store MeetingGetter, sub Subscriber, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid meeting id")
			return
		}
		m, err := store.GetByID(c.Request.Context(), id)
		if err != nil {
			logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id.String()))
			response.Internal(c, "failed to load meeting")
			return
		}
		if m == nil {
			response.NotFound(c, "meeting not found")
			return
		}

		events := make(chan WSMessage, 16)
		var cancel func()
		if !m.Status.Terminal() {
			// Subscribe before the snapshot so no transition falls between the two.
			cancel, err = sub.SubscribeMeeting(id, func(event string, payload []byte) {
				select {
				case events <- WSMessage{Event: event, Data: payload}:
				default:
					logger.Warn("status stream backlog full, dropping event", zap.String("meeting_id", id.String()))
				}
			})
			if err != nil {
				logger.Error("subscribe failed", zap.Error(err), zap.String("meeting_id", id.String()))
				response.ServiceUnavailable(c, "status stream unavailable")
				return
			}
			defer cancel()
			if fresh, err := store.GetByID(c.Request.Context(), id); err == nil && fresh != nil {
				m = fresh
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		s := &statusStream{conn: conn, events: events, closed: make(chan struct{}), logger: logger}
		go s.readPump()
		s.writePump(m)
	}
}

type statusStream struct {
	conn   *websocket.Conn
	events chan WSMessage
	closed chan struct{}
	logger *zap.Logger
}

// readPump discards client frames and notices disconnects.
func (s *statusStream) readPump() {
	defer close(s.closed)
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(PongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *statusStream) writePump(snapshot *models.Meeting) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	data, _ := json.Marshal(NewStatusEvent(snapshot))
	if !s.write(WSMessage{Event: EventStatus, Data: data}) || snapshot.Status.Terminal() {
		s.closeNormal()
		return
	}
	for {
		select {
		case msg := <-s.events:
			if !s.write(msg) {
				return
			}
			if msg.Event == EventStatus && terminal(msg.Data) {
				s.closeNormal()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *statusStream) write(msg WSMessage) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("status stream write failed", zap.Error(err))
		return false
	}
	return true
}

func (s *statusStream) closeNormal() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(writeWait))
}

func terminal(data []byte) bool {
	var ev StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return false
	}
	return ev.Status.Terminal()
}
