// internal/storage/sql_test.go
//
// SQL store tests using sqlmock.
//
// Run: go test ./internal/storage -v

package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
)

func newMock(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQL(sqlx.NewDb(db, "mysql")), mock
}

func TestSQL_GetOptions(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name AS k, value AS v FROM options WHERE name IN (?, ?)`)).
		WithArgs("site_title", "site_tags").
		WillReturnRows(sqlmock.NewRows([]string{"k", "v"}).
			AddRow("site_title", `"Hello"`).
			AddRow("site_tags", `["a","b"]`))

	got, err := s.GetOptions(context.Background(), []string{"site_title", "site_tags"})
	if err != nil {
		t.Fatalf("GetOptions: %v", err)
	}
	want := map[string]any{"site_title": "Hello", "site_tags": []any{"a", "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetOptions mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_SetMeta(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO entity_meta (entity_id, meta_key, meta_value) VALUES (?, ?, ?)`)).
		WithArgs(int64(9), "color", `"red"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SetMeta(context.Background(), 9, "color", "red"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_Incr(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO transients (name, value, expires_at) VALUES (?, 1, ?)`)).
		WithArgs("k", now.Add(time.Minute), now, now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM transients WHERE name = ?`)).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(4))

	n, err := s.Incr(context.Background(), "k", time.Minute)
	if err != nil || n != 4 {
		t.Fatalf("Incr = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestOptionsAdapter_SaveJoinsFailures(t *testing.T) {
	s, mock := newMock(t)
	insert := regexp.QuoteMeta(`INSERT INTO options (name, value) VALUES (?, ?)`)

	mock.ExpectExec(insert).WithArgs("my_a", `1`).WillReturnError(errors.New("disk full"))
	mock.ExpectExec(insert).WithArgs("my_b", `"x"`).WillReturnResult(sqlmock.NewResult(0, 1))

	a := &Options{Store: s, Prefix: "my_"}
	err := a.Save(context.Background(), map[string]any{"a": 1, "b": "x"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("second key not attempted: %v", err)
	}
}
