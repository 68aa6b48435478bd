package kafka

import (
	"context"

	errs "PPGateway/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

const HeaderEventType = "event_type"

// Publisher sends broker events to the topic named by the routing key.
// sarama retries internally; ctx only bounds how long the caller waits.
type Publisher struct {
	prod   sarama.SyncProducer
	client sarama.Client
}

// NewPublisher connects to the brokers and builds a sync producer on top.
func NewPublisher(c Config) (*Publisher, error) {
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errs.WrapMsg(err, "kafka sync producer")
	}
	return &Publisher{prod: p, client: client}, nil
}

// NewPublisherWith wraps an existing producer.
func NewPublisherWith(p sarama.SyncProducer) *Publisher {
	return &Publisher{prod: p}
}

// Client is nil when the publisher wraps a caller-supplied producer.
func (p *Publisher) Client() sarama.Client { return p.client }

func (p *Publisher) Publish(ctx context.Context, eventType string, payload []byte, routingKey string) error {
	msg := &sarama.ProducerMessage{
		Topic: routingKey,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(eventType)},
		},
	}

	type sent struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan sent, 1)
	go func() {
		part, off, err := p.prod.SendMessage(msg)
		done <- sent{part, off, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return errs.WrapMsg(r.err, "kafka send", "topic", routingKey)
		}
		glog.V(2).Infof("kafka sent topic=%s partition=%d offset=%d event=%s", routingKey, r.partition, r.offset, eventType)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	err := p.prod.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
