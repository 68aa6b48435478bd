package profile

import (
	"context"
	"errors"

	"PPGateway/service/notify"
	errs "PPGateway/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryProfile = `SELECT display_name, COALESCE(avatar_url, '') FROM profiles WHERE id = $1`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgLookup reads sender display data for notifications.
type PgLookup struct {
	db querier
}

func NewPgLookup(db querier) *PgLookup {
	return &PgLookup{db: db}
}

// Connect 建立连接池并 ping 一次
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errs.WrapMsg(err, "parse postgres url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "ping postgres")
	}
	return pool, nil
}

func (l *PgLookup) Profile(ctx context.Context, userID string) (notify.Profile, error) {
	var p notify.Profile
	err := l.db.QueryRow(ctx, queryProfile, userID).Scan(&p.DisplayName, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Profile{}, errs.ErrRecordNotFound.WrapMsg("profile not found", "userId", userID)
	}
	if err != nil {
		return notify.Profile{}, errs.WrapMsg(err, "query profile", "userId", userID)
	}
	return p, nil
}
