// internal/acl/store_test.go
//
// Unit-tests for acl helpers using sqlmock.
//
// Run: go test ./internal/acl -v

package acl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/yanizio/adept-forms/internal/auth"
)

const userCanQuery = `SELECT 1 FROM user_role ur JOIN role r ON r.id = ur.role_id ` +
	`JOIN role_capability rc ON rc.role_id = r.id WHERE ur.user_id = ? AND r.enabled = TRUE ` +
	`AND rc.capability = ? AND rc.permitted = TRUE LIMIT 1`

func TestUserRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT r.name FROM user_role ur JOIN role r ON r.id = ur.role_id WHERE ur.user_id = ? AND r.enabled = TRUE`,
	)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor").AddRow("admin"))

	got, err := UserRoles(context.Background(), db, 42)
	if err != nil {
		t.Fatalf("UserRoles error: %v", err)
	}
	if len(got) != 2 || got[0] != "editor" || got[1] != "admin" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUserCan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(userCanQuery)).
		WithArgs(int64(7), "manage_options").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(userCanQuery)).
		WithArgs(int64(8), "manage_options").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := UserCan(context.Background(), db, 7, "manage_options")
	if err != nil || !ok {
		t.Fatalf("UserCan(7) = %v, %v; want true, nil", ok, err)
	}
	ok, err = UserCan(context.Background(), db, 8, "manage_options")
	if err != nil || ok {
		t.Fatalf("UserCan(8) = %v, %v; want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestChecker_NoUserIsDenied(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	ok, err := (&Checker{DB: db}).Can(context.Background(), "manage_options")
	if err != nil || ok {
		t.Fatalf("Can without user = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query expected: %v", err)
	}
}

type fakeChecker map[string]bool

func (f fakeChecker) Can(_ context.Context, c string) (bool, error) { return f[c], nil }

func TestRequireCapability(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireCapability(fakeChecker{"manage_options": true}, "manage_options")(next)
	denied := RequireCapability(fakeChecker{}, "manage_options")(next)

	cases := []struct {
		name    string
		handler http.Handler
		user    bool
		want    int
	}{
		{"anonymous", h, false, http.StatusUnauthorized},
		{"granted", h, true, http.StatusOK},
		{"denied", denied, true, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/forms/x", nil)
			if tc.user {
				req = req.WithContext(auth.WithUser(req.Context(), 1))
			}
			rr := httptest.NewRecorder()
			tc.handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
