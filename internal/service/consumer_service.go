package service

import (
	"context"

	"aicca-realtime/internal/notify"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/session"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	// Consume subscribes and delivers changes to the handler in publish order
	// until ctx is cancelled.
	Consume(ctx context.Context) error
}

// ChangeHandler must not call back into the session's event loop: the
// publisher is blocked until the handler returns.
type ChangeHandler func(change session.Change)

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	handler    ChangeHandler
	logger     logger.ILogger
}

func NewConsumerService(subscriber message.Subscriber, topicName string, handler ChangeHandler, log logger.ILogger) IConsumerService {
	if topicName == "" {
		topicName = notify.ChangesTopic
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		handler:    handler,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	change, err := notify.DecodeChange(msg)
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal change", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}
	cs.handler(change)
	msg.Ack()
}
