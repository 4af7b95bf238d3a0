package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.exists
	return nil
}

type fakeQuerier struct {
	row  fakeRow
	sql  string
	args []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestPostgresStoreExistsByEmail(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{exists: true}}
	s := newPostgresStore(q, "")

	ok, err := s.ExistsByEmail(context.Background(), "  Donor@Example.org ")
	if err != nil {
		t.Fatalf("ExistsByEmail failed: %v", err)
	}
	if !ok {
		t.Fatal("expected existing account")
	}
	if !strings.Contains(q.sql, `FROM "users"`) || !strings.Contains(q.sql, "lower(email) = lower($1)") {
		t.Fatalf("unexpected query %q", q.sql)
	}
	if len(q.args) != 1 || q.args[0] != "Donor@Example.org" {
		t.Fatalf("unexpected args %v", q.args)
	}
}

func TestPostgresStoreCustomTableIsQuoted(t *testing.T) {
	q := &fakeQuerier{}
	s := newPostgresStore(q, `donors"; DROP TABLE x; --`)
	_, _ = s.ExistsByEmail(context.Background(), "a@b.com")
	if !strings.Contains(q.sql, `"donors""; DROP TABLE x; --"`) {
		t.Fatalf("table identifier must be sanitized: %q", q.sql)
	}
}

func TestPostgresStoreErrorWrapsUnavailable(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: errors.New("conn refused")}}
	_, err := newPostgresStore(q, "").ExistsByEmail(context.Background(), "a@b.com")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPostgresStoreEmptyEmail(t *testing.T) {
	q := &fakeQuerier{}
	ok, err := newPostgresStore(q, "").ExistsByEmail(context.Background(), " ")
	if err != nil || ok {
		t.Fatalf("ExistsByEmail = %v, %v", ok, err)
	}
	if q.sql != "" {
		t.Fatal("empty email must not query")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore("Taken@Example.org")
	ctx := context.Background()

	if ok, _ := s.ExistsByEmail(ctx, "taken@example.org"); !ok {
		t.Fatal("expected case-insensitive match")
	}
	if ok, _ := s.ExistsByEmail(ctx, "free@example.org"); ok {
		t.Fatal("unexpected match")
	}
}
