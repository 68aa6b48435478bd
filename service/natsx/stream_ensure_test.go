package natsx

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
)

type fakeStreams struct {
	bound   map[string]string
	lookErr error
	addErr  error
	added   []*nats.StreamConfig
}

func (f *fakeStreams) StreamNameBySubject(subject string, _ ...nats.JSOpt) (string, error) {
	if f.lookErr != nil {
		return "", f.lookErr
	}
	if name, ok := f.bound[subject]; ok {
		return name, nil
	}
	return "", nats.ErrNoMatchingStream
}

func (f *fakeStreams) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added = append(f.added, cfg)
	if f.bound == nil {
		f.bound = map[string]string{}
	}
	for _, s := range cfg.Subjects {
		f.bound[s] = cfg.Name
	}
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestEnsureStreamCreatesMissing(t *testing.T) {
	f := &fakeStreams{}
	if err := EnsureStream(f, "notification.message.received"); err != nil {
		t.Fatal(err)
	}
	if len(f.added) != 1 {
		t.Fatalf("want 1 stream created, got %d", len(f.added))
	}
	cfg := f.added[0]
	if cfg.Name != "NOTIFICATION_MESSAGE_RECEIVED" || len(cfg.Subjects) != 1 || cfg.Subjects[0] != "notification.message.received" {
		t.Fatalf("stream config %+v", cfg)
	}
	if cfg.Duplicates <= 0 {
		t.Fatal("duplicate window not set")
	}

	// 第二次不再创建
	if err := EnsureStream(f, "notification.message.received"); err != nil || len(f.added) != 1 {
		t.Fatalf("second ensure err=%v added=%d", err, len(f.added))
	}
}

func TestEnsureStreamKeepsExisting(t *testing.T) {
	f := &fakeStreams{bound: map[string]string{"notification.message.received": "NOTIFY"}}
	if err := EnsureStream(f, "notification.message.received"); err != nil {
		t.Fatal(err)
	}
	if len(f.added) != 0 {
		t.Fatal("existing stream was recreated")
	}
}

func TestEnsureStreamErrors(t *testing.T) {
	raced := &fakeStreams{addErr: nats.ErrStreamNameAlreadyInUse}
	if err := EnsureStream(raced, "a.b"); err != nil {
		t.Fatalf("name-in-use should be accepted: %v", err)
	}

	boom := errors.New("jetstream not enabled")
	if err := EnsureStream(&fakeStreams{lookErr: boom}, "a.b"); !errors.Is(err, boom) {
		t.Fatalf("want lookup error, got %v", err)
	}
	if err := EnsureStream(&fakeStreams{addErr: boom}, "a.b"); !errors.Is(err, boom) {
		t.Fatalf("want add error, got %v", err)
	}
}
