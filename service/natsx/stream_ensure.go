package natsx

import (
	"errors"
	"strings"
	"time"

	"PPGateway/logger"
	errs "PPGateway/tools/errs"

	"github.com/nats-io/nats.go"
)

// Nats-Msg-Id 去重窗口，需覆盖同步发布的全部重试
const streamDuplicates = 2 * time.Minute

// streamManager is the part of nats.JetStreamContext EnsureStream needs.
type streamManager interface {
	StreamNameBySubject(subject string, opts ...nats.JSOpt) (string, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// StreamName derives a stream name from a subject; dots and wildcards are
// not allowed in stream names.
func StreamName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "ANY", ">", "ALL")
	return strings.ToUpper(r.Replace(subject))
}

// EnsureStream makes sure some stream captures subject, creating a file
// backed one when none does. An operator-managed stream that already covers
// the subject is left alone.
func EnsureStream(jsm streamManager, subject string) error {
	name, err := jsm.StreamNameBySubject(subject)
	if err == nil {
		logger.Debugf("[NATS] subject=%s bound to stream=%s", subject, name)
		return nil
	}
	if !errors.Is(err, nats.ErrNoMatchingStream) {
		return errs.WrapMsg(err, "lookup stream", "subject", subject)
	}

	cfg := &nats.StreamConfig{
		Name:       StreamName(subject),
		Subjects:   []string{subject},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: streamDuplicates,
	}
	if _, err := jsm.AddStream(cfg); err != nil {
		// 并发的另一个网关可能刚建好
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return errs.WrapMsg(err, "add stream", "stream", cfg.Name, "subject", subject)
	}
	logger.Infof("[NATS] created stream=%s subject=%s", cfg.Name, subject)
	return nil
}
