package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/operion/pkg/events"
)

// eventFactory builds a zero-value pointer for a registered event type so
// incoming payloads can be unmarshalled before being handed to handlers.
type eventFactory func() any

// WatermillEventBus adapts a watermill Publisher/Subscriber pair (normally
// the in-process gochannel pair from pkg/channels/gochannel) to EventBus.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	handlers  map[events.EventType]EventHandler
	factories map[events.EventType]eventFactory
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	bus := &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		handlers:   make(map[events.EventType]EventHandler),
		factories:  make(map[events.EventType]eventFactory),
	}

	bus.registerBuiltins()

	return bus
}

func (eb *WatermillEventBus) registerBuiltins() {
	register(eb, events.RunStartedEvent, func() any { return &events.RunStarted{} })
	register(eb, events.RunCompletedEvent, func() any { return &events.RunCompleted{} })
	register(eb, events.RunFailedEvent, func() any { return &events.RunFailed{} })
	register(eb, events.StepDispatchedEvent, func() any { return &events.StepDispatched{} })
	register(eb, events.StepCompletedEvent, func() any { return &events.StepCompleted{} })
	register(eb, events.StepFailedEvent, func() any { return &events.StepFailed{} })
}

func register(eb *WatermillEventBus, t events.EventType, f eventFactory) {
	eb.factories[t] = f
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.handlers[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", events.Topic, err)
	}

	go eb.consume(ctx, messages)

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		factory, known := eb.factories[eventType]
		if !known {
			msg.Ack()

			continue
		}

		handler, hasHandler := eb.handlers[eventType]
		if !hasHandler {
			msg.Ack()

			continue
		}

		event := factory()
		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Nack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}

	return nil
}
