package storage

import (
	"context"
	"errors"
	"time"

	errs "PPGateway/tools/errs"

	"github.com/redis/go-redis/v9"
)

// kv is the slice of the redis client the presence mirror needs.
type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// 仅当 value 仍是本网关时删除，GET 与 DEL 在一个脚本里完成
const compareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// presence key: im:presence:<user>
// Value: gateway_id, TTL controls the online validity period
func presenceKey(user string) string { return "im:presence:" + user }

// RedisPresence mirrors the gateway's online set into Redis so other
// services can see which gateway holds a user.
type RedisPresence struct {
	rdb       kv
	gatewayID string
	ttl       time.Duration
}

func NewRedisPresence(rdb kv, gatewayID string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisPresence{rdb: rdb, gatewayID: gatewayID, ttl: ttl}
}

// SetOnline sets the user as online and renews the TTL
func (p *RedisPresence) SetOnline(ctx context.Context, user string) error {
	if err := p.rdb.Set(ctx, presenceKey(user), p.gatewayID, p.ttl).Err(); err != nil {
		return errs.WrapMsg(err, "presence online", "user", user)
	}
	return nil
}

// SetOffline deletes the key unless another gateway has taken the user over.
func (p *RedisPresence) SetOffline(ctx context.Context, user string) error {
	if err := p.rdb.Eval(ctx, compareAndDelete, []string{presenceKey(user)}, p.gatewayID).Err(); err != nil {
		return errs.WrapMsg(err, "presence offline", "user", user)
	}
	return nil
}

// Lookup checks whether the user is online and on which gateway
func (p *RedisPresence) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.WrapMsg(err, "presence lookup", "user", user)
	}
	return val, true, nil
}
