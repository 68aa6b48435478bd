package profile

import (
	"context"
	"errors"
	"testing"

	errs "PPGateway/tools/errs"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	name, avatar string
	err          error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.name
	*dest[1].(*string) = r.avatar
	return nil
}

type fakeDB struct {
	row  fakeRow
	args []any
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = args
	return f.row
}

func TestProfileFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{name: "Alice", avatar: "https://cdn/a.png"}}
	p, err := NewPgLookup(db).Profile(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Alice" || p.AvatarURL != "https://cdn/a.png" {
		t.Fatalf("got %+v", p)
	}
	if len(db.args) != 1 || db.args[0] != "u1" {
		t.Fatalf("args %v", db.args)
	}
}

func TestProfileNotFound(t *testing.T) {
	_, err := NewPgLookup(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}).Profile(context.Background(), "ghost")
	if errs.Code(err) != errs.NotFoundError {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestProfileQueryError(t *testing.T) {
	boom := errors.New("conn reset")
	_, err := NewPgLookup(&fakeDB{row: fakeRow{err: boom}}).Profile(context.Background(), "u1")
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped cause, got %v", err)
	}
}
