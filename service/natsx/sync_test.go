package natsx

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyOnce struct {
	failures int
	ids      []string
}

func (f *flakyOnce) PublishOnce(_ context.Context, _ string, _ []byte, _ map[string]string, msgID string) error {
	f.ids = append(f.ids, msgID)
	if len(f.ids) <= f.failures {
		return errors.New("nats: timeout")
	}
	return nil
}

func TestSyncPublisherReusesMsgID(t *testing.T) {
	f := &flakyOnce{failures: 2}
	sp := &NatsxSyncPublisher{P: f, Retries: 3, Backoff: time.Millisecond}
	if err := sp.Publish(context.Background(), "biz", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	if len(f.ids) != 3 {
		t.Fatalf("attempts %d", len(f.ids))
	}
	if f.ids[0] == "" || f.ids[0] != f.ids[1] || f.ids[1] != f.ids[2] {
		t.Fatalf("msg id must be stable across retries: %v", f.ids)
	}
}

func TestSyncPublisherGivesUp(t *testing.T) {
	f := &flakyOnce{failures: 10}
	sp := &NatsxSyncPublisher{P: f, Retries: 2, Backoff: time.Millisecond}
	if err := sp.Publish(context.Background(), "biz", nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if len(f.ids) != 3 {
		t.Fatalf("attempts %d", len(f.ids))
	}
}

func TestSyncPublisherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sp := &NatsxSyncPublisher{P: &flakyOnce{failures: 10}, Retries: 5, Backoff: time.Hour}
	if err := sp.Publish(ctx, "biz", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
