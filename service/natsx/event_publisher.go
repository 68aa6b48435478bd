package natsx

import (
	"context"
	"time"
)

const HeaderEventType = "Event-Type"

// EventPublisher publishes broker events with the routing key as subject.
// One biz route is registered per routing key on first use.
type EventPublisher struct {
	m    *NatsManager
	mode NatsxMode
	sync *NatsxSyncPublisher
}

func NewEventPublisher(m *NatsManager, jetStream bool, retries int, backoff time.Duration) *EventPublisher {
	mode := Core
	if jetStream {
		mode = JetStream
	}
	return &EventPublisher{
		m:    m,
		mode: mode,
		sync: &NatsxSyncPublisher{P: m, Retries: retries, Backoff: backoff},
	}
}

func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload []byte, routingKey string) error {
	if _, ok := p.m.client.route(routingKey); !ok {
		if err := p.m.RegisterRoute(NatsxRoute{Biz: routingKey, Subject: routingKey, Mode: p.mode}); err != nil {
			return err
		}
	}
	return p.sync.Publish(ctx, routingKey, payload, map[string]string{HeaderEventType: eventType})
}
