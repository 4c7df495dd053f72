// Package notify fans session store changes out to observers outside the
// event loop: an in-process watermill bus and, optionally, NATS.
package notify

import (
	"encoding/json"

	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const ChangesTopic = "session.changes"

// NewChangeBus returns the in-process pub/sub used for store changes.
// Publishing blocks until the subscriber acks, which keeps changes in order.
func NewChangeBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
}

// Watermill publishes every change as a JSON message on a watermill topic.
type Watermill struct {
	publisher message.Publisher
	topic     string
	logger    logger.ILogger
}

func NewWatermill(publisher message.Publisher, topic string, log logger.ILogger) *Watermill {
	if topic == "" {
		topic = ChangesTopic
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Watermill{publisher: publisher, topic: topic, logger: log}
}

func (w *Watermill) Notify(change session.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		w.logger.Error("Notify", "Failed to marshal change", map[string]interface{}{"error": err.Error(), "type": change.Type})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("change_type", string(change.Type))
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		w.logger.Warn("Notify", "Failed to publish change", map[string]interface{}{"error": err.Error(), "type": change.Type})
	}
}

// DecodeChange parses a message produced by Watermill.
func DecodeChange(msg *message.Message) (session.Change, error) {
	var change session.Change
	err := json.Unmarshal(msg.Payload, &change)
	return change, err
}
