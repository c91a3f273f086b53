package kvstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/sqlinline"
)

type stubRow struct {
	value []byte
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case *[]byte:
		*d = r.value
	case *int:
		*d = 1
	}
	return nil
}

type stubSQL struct {
	execs   []string
	args    [][]any
	tag     pgconn.CommandTag
	execErr error
	rows    []stubRow
}

func (s *stubSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, query)
	s.args = append(s.args, args)
	return s.tag, s.execErr
}

func (s *stubSQL) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	s.execs = append(s.execs, query)
	if len(s.rows) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	return row
}

func (s *stubSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresMigrateRunsSchema(t *testing.T) {
	sql := &stubSQL{}
	if err := NewPostgres(sql).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(sql.execs) != 3 {
		t.Fatalf("execs = %d, want 3", len(sql.execs))
	}
	if !strings.Contains(sql.execs[0], "create table if not exists kv_entries") {
		t.Fatalf("first statement = %q", sql.execs[0])
	}
}

func TestPostgresGetMissing(t *testing.T) {
	s := NewPostgres(&stubSQL{})
	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestPostgresSetNXReportsRowsAffected(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "inserted", tag: "INSERT 0 1", want: true},
		{name: "present", tag: "INSERT 0 0", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql := &stubSQL{tag: pgconn.NewCommandTag(tc.tag)}
			ok, err := NewPostgres(sql).SetNX(context.Background(), "k", []byte("v"), 2*time.Second)
			if err != nil {
				t.Fatalf("SetNX: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("SetNX = %v, want %v", ok, tc.want)
			}
			if sql.execs[0] != sqlinline.QKVSetNX {
				t.Fatalf("SetNX ran %q", sql.execs[0])
			}
			if ttl := sql.args[0][2].(int64); ttl != 2000 {
				t.Fatalf("ttl arg = %d, want 2000", ttl)
			}
		})
	}
}

func TestPostgresZeroTTLUsesFarExpiry(t *testing.T) {
	sql := &stubSQL{}
	if err := NewPostgres(sql).Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := sql.args[0][2].(int64); ttl != noExpiry.Milliseconds() {
		t.Fatalf("ttl arg = %d, want %d", ttl, noExpiry.Milliseconds())
	}
}

func TestPostgresWrapsDriverErrors(t *testing.T) {
	cause := errors.New("connection refused")
	s := NewPostgres(&stubSQL{execErr: cause})
	err := s.Set(context.Background(), "k", []byte("v"), time.Minute)
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("Set error = %v, want ErrPersistence wrapping cause", err)
	}
}

func TestPostgresPopPollsUntilItemArrives(t *testing.T) {
	sql := &stubSQL{rows: []stubRow{{err: pgx.ErrNoRows}, {value: []byte("job-1")}}}
	s := NewPostgres(sql)
	s.pollInterval = time.Millisecond
	item, err := s.Pop(context.Background(), "q", time.Second)
	if err != nil || string(item) != "job-1" {
		t.Fatalf("Pop = %q, %v; want job-1", item, err)
	}
}

func TestPostgresPopTimesOut(t *testing.T) {
	s := NewPostgres(&stubSQL{})
	s.pollInterval = time.Millisecond
	if _, err := s.Pop(context.Background(), "q", 5*time.Millisecond); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Pop error = %v, want ErrNotFound", err)
	}
}

func TestPostgresPurgeExpired(t *testing.T) {
	sql := &stubSQL{tag: pgconn.NewCommandTag("DELETE 4")}
	n, err := NewPostgres(sql).PurgeExpired(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("PurgeExpired = %d, %v; want 4", n, err)
	}
}
