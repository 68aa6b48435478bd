package natsx

import (
	"context"
	"time"

	"PPGateway/logger"

	"github.com/google/uuid"
)

type oncePublisher interface {
	PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error
}

// NatsxSyncPublisher 同步发布器（带重试）
// 每次重试复用同一个 msgID，服务端据此去重。
type NatsxSyncPublisher struct {
	P       oncePublisher
	Retries int
	Backoff time.Duration
}

func (sp *NatsxSyncPublisher) Publish(ctx context.Context, biz string, payload []byte, hdr map[string]string) error {
	msgID := uuid.NewString()
	var err error
	for i := 0; i <= sp.Retries; i++ {
		err = sp.P.PublishOnce(ctx, biz, payload, hdr, msgID)
		if err == nil {
			return nil
		}
		if i == sp.Retries {
			break
		}
		logger.Debugf("[NATS] publish biz=%s attempt=%d err=%v", biz, i+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sp.Backoff * time.Duration(i+1)):
		}
	}
	return err
}
