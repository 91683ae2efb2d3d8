package events

import (
	"context"
	"encoding/json"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

type Channel string

func (c Channel) String() string {
	return string(c)
}

const (
	PIPELINE_CHANNEL Channel = "pipeline"
)

type MessageType string

const (
	UPLOAD_RECEIVED    MessageType = "upload_received"
	ANALYSIS_COMPLETED MessageType = "analysis_completed"
	ANALYSIS_FAILED    MessageType = "analysis_failed"
	SUMMARY_UPDATED    MessageType = "summary_updated"
	NOTIFICATION_SENT  MessageType = "notification_sent"
	RUN_FAILED         MessageType = "run_failed"
	DIGEST_COMPLETED   MessageType = "digest_completed"
	TREND_UPDATED      MessageType = "trend_updated"
)

type Event struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Channel   Channel        `json:"channel"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher is the narrow surface pipeline stages depend on.
type Publisher interface {
	Publish(channel Channel, event Event) error
}

// EventBus publishes pipeline lifecycle events over valkey pub/sub for
// out-of-process consumers. With a nil client publishing is a no-op.
type EventBus struct {
	client valkey.Client
	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(client valkey.Client) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventBus{
		client: client,
		logger: logger.New("EventBus"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// stamp fills the envelope fields a caller left empty.
func stamp(channel Channel, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Channel == "" {
		event.Channel = channel
	}
	return event
}

func (eb *EventBus) Publish(channel Channel, event Event) error {
	log := eb.logger.Function("Publish")

	event = stamp(channel, event)

	if eb.client != nil {
		eventData, err := json.Marshal(event)
		if err != nil {
			return log.Err("failed to marshal event", err, "eventID", event.ID)
		}

		ctx, cancel := context.WithTimeout(eb.ctx, 5*time.Second)
		defer cancel()

		err = eb.client.Do(ctx, eb.client.B().Publish().Channel(channel.String()).Message(string(eventData)).Build()).
			Error()
		if err != nil {
			return log.Err(
				"failed to publish event to valkey",
				err,
				"channel", channel,
				"eventID", event.ID,
			)
		}
	}

	log.Debug("Event published", "channel", channel, "eventID", event.ID, "eventType", event.Type)

	return nil
}

func (eb *EventBus) Close() error {
	log := eb.logger.Function("Close")

	eb.cancel()

	log.Info("EventBus closed")
	return nil
}
