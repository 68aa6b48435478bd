package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func TestPublishSendsPayloadToRoutingKeyTopic(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"recipientUserId":"B"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewPublisherWith(mp)
	if err := p.Publish(context.Background(), "MESSAGE_RECEIVED", []byte(`{"recipientUserId":"B"}`), "notification.message.received"); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPublishReturnsBrokerError(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWith(mp)
	err := p.Publish(context.Background(), "MESSAGE_RECEIVED", []byte(`{}`), "notification.message.received")
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("got %v", err)
	}
	_ = p.Close()
}

func TestBuildBaseConfig(t *testing.T) {
	cfg, err := BuildBaseConfig(Config{ProducerCompression: "lz4", Version: "2.8.0"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Producer.Compression != sarama.CompressionLZ4 || !cfg.Producer.Return.Successes {
		t.Fatalf("producer config %+v", cfg.Producer)
	}
	if cfg.Version != sarama.V2_8_0_0 {
		t.Fatalf("version %v", cfg.Version)
	}
	if _, err := BuildBaseConfig(Config{Version: "not-a-version"}); err == nil {
		t.Fatal("expected error")
	}
}
