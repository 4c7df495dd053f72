package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/session"
	"aicca-realtime/pkg/events"
)

// EventPublisher is satisfied by pkg/nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, event events.Event) error
}

const natsBuffer = 256

// Nats forwards changes to an external bus from its own goroutine so a slow
// broker never stalls the event loop. Changes are dropped when the buffer is full.
type Nats struct {
	publisher EventPublisher
	sessionID string
	logger    logger.ILogger
	timeout   time.Duration

	queue     chan session.Change
	done      chan struct{}
	closeOnce sync.Once
}

func NewNats(publisher EventPublisher, sessionID string, log logger.ILogger) *Nats {
	if log == nil {
		log = logger.NewNopLogger()
	}
	n := &Nats{
		publisher: publisher,
		sessionID: sessionID,
		logger:    log,
		timeout:   5 * time.Second,
		queue:     make(chan session.Change, natsBuffer),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Nats) Notify(change session.Change) {
	select {
	case n.queue <- change:
	default:
		n.logger.Warn("Notify", "NATS buffer full, dropping change", map[string]interface{}{"type": change.Type})
	}
}

// Close publishes whatever is buffered and stops the worker.
func (n *Nats) Close() {
	n.closeOnce.Do(func() { close(n.queue) })
	<-n.done
}

func (n *Nats) run() {
	defer close(n.done)
	for change := range n.queue {
		event, err := toEvent(change)
		if err != nil {
			n.logger.Error("Notify", "Failed to encode change", map[string]interface{}{"error": err.Error()})
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err = n.publisher.Publish(ctx, n.sessionID, event)
		cancel()
		if err != nil {
			n.logger.Warn("Notify", "Failed to publish change to NATS", map[string]interface{}{
				"error": err.Error(),
				"type":  change.Type,
			})
		}
	}
}

func toEvent(change session.Change) (events.BaseEvent, error) {
	raw, err := json.Marshal(change)
	if err != nil {
		return events.BaseEvent{}, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return events.BaseEvent{}, err
	}
	return events.BaseEvent{
		Type:       events.SessionEventType(string(change.Type)),
		Data:       data,
		OccurredAt: change.At,
	}, nil
}
