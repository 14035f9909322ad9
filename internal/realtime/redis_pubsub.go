package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
)

const (
	channelPrefix = "meeting:"
	eventTTL      = 5 * time.Second

	// EventStatus carries a StatusEvent.
	EventStatus = "status"
)

// StatusEvent is published after every committed status change of a meeting.
type StatusEvent struct {
	MeetingID     uuid.UUID            `json:"meeting_id"`
	Status        models.MeetingStatus `json:"status"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// NewStatusEvent builds the event for the current state of m.
func NewStatusEvent(m *models.Meeting) StatusEvent {
	return StatusEvent{MeetingID: m.ID, Status: m.Status, FailureReason: m.FailureReason, UpdatedAt: m.UpdatedAt}
}

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub fans meeting status events out over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for meeting events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStatus publishes the meeting's status. Failures are logged; the record remains authoritative.
func (r *RedisPubSub) PublishStatus(ctx context.Context, m *models.Meeting) {
	data, err := json.Marshal(NewStatusEvent(m))
	if err != nil {
		r.logger.Warn("marshal status event", zap.Error(err))
		return
	}
	if err := r.PublishMeetingEvent(ctx, m.ID, EventStatus, data); err != nil {
		r.logger.Warn("publish status event failed", zap.Error(err), zap.String("meeting_id", m.ID.String()))
	}
}

// PublishMeetingEvent publishes an event to the meeting's Redis channel.
func (r *RedisPubSub) PublishMeetingEvent(ctx context.Context, meetingID uuid.UUID, event string, payload []byte) error {
	channel := channelPrefix + meetingID.String()
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeMeeting subscribes to a meeting's Redis channel and calls handler for each message.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + meetingID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	cancel = func() { cancelCtx() }
	return cancel, nil
}
