package migrations

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

const ensureVersionTableSQL = "CREATE TABLE IF NOT EXISTS nlsql_schema_migrations"

func twoStepFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INT)")},
		"sql/000002_two.down.sql": {Data: []byte("DROP TABLE two")},
		"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INT)")},
		"sql/000001_one.down.sql": {Data: []byte("DROP TABLE one")},
		"sql/README.md":           {Data: []byte("ignored")},
	}
}

func newMigrationMock(t *testing.T, applied ...int64) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta(ensureVersionTableSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"})
	for _, version := range applied {
		rows.AddRow(version)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM nlsql_schema_migrations")).WillReturnRows(rows)
	return db, mock
}

func TestLoadPairsScriptsByVersion(t *testing.T) {
	items, err := Load(twoStepFS())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].String() != "000001_one" || items[1].String() != "000002_two" {
		t.Fatalf("order = %s, %s", items[0], items[1])
	}
	if items[1].Down != "DROP TABLE two" {
		t.Fatalf("Down = %q", items[1].Down)
	}
}

func TestLoadRejectsIncompletePairs(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"missing down SQL": {
			"sql/000001_one.up.sql": {Data: []byte("SELECT 1")},
		},
		"missing up SQL": {
			"sql/000001_one.down.sql": {Data: []byte("SELECT 1")},
		},
		"conflicting names": {
			"sql/000001_one.up.sql":   {Data: []byte("SELECT 1")},
			"sql/000001_uno.down.sql": {Data: []byte("SELECT 1")},
		},
	}
	for want, fsys := range tests {
		_, err := Load(fsys)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("Load() error = %v, want %q", err, want)
		}
	}
}

func TestEmbeddedMigrationsCoverUsersAndSessions(t *testing.T) {
	items, err := Load(embedded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("embedded migrations = %v", items)
	}

	users, sessions := items[0], items[1]
	if users.String() != "000001_app_user" || sessions.String() != "000002_user_session" {
		t.Fatalf("names = %s, %s", users, sessions)
	}
	for _, snippet := range []string{"CREATE TABLE app_user", "password_hash", "app_user_username_key"} {
		if !strings.Contains(users.Up, snippet) {
			t.Fatalf("app_user up missing %q", snippet)
		}
	}
	for _, snippet := range []string{"CREATE TABLE user_session", "token_hash TEXT PRIMARY KEY", "user_session_expires_at_idx"} {
		if !strings.Contains(sessions.Up, snippet) {
			t.Fatalf("user_session up missing %q", snippet)
		}
	}
	if !strings.Contains(users.Down, "DROP TABLE IF EXISTS app_user") || !strings.Contains(sessions.Down, "DROP TABLE IF EXISTS user_session") {
		t.Fatalf("down scripts = %q / %q", users.Down, sessions.Down)
	}
}

func TestUpAppliesOnlyPendingVersions(t *testing.T) {
	db, mock := newMigrationMock(t, 1)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE two (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nlsql_schema_migrations (version, name) VALUES ($1, $2)")).
		WithArgs(int64(2), "two").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := NewRunnerFS(twoStepFS()).Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestUpHonoursStepLimit(t *testing.T) {
	db, mock := newMigrationMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE one (id INT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nlsql_schema_migrations (version, name) VALUES ($1, $2)")).
		WithArgs(int64(1), "one").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := NewRunnerFS(twoStepFS()).Up(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestUpRollsBackFailedScript(t *testing.T) {
	db, mock := newMigrationMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE one (id INT)")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := NewRunnerFS(twoStepFS()).Up(context.Background(), db, 0)
	if err == nil || !strings.Contains(err.Error(), "apply 000001_one") {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDownRollsBackNewestFirst(t *testing.T) {
	db, mock := newMigrationMock(t, 1, 2)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE two")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM nlsql_schema_migrations WHERE version = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rolledBack, err := NewRunnerFS(twoStepFS()).Down(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("rolledBack = %d, want 1", rolledBack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDownFailsForUnknownAppliedVersion(t *testing.T) {
	db, _ := newMigrationMock(t, 7)
	if _, err := NewRunnerFS(twoStepFS()).Down(context.Background(), db, 1); err == nil || !strings.Contains(err.Error(), "no source script") {
		t.Fatalf("Down() error = %v", err)
	}
}

func TestStatusMarksAppliedVersions(t *testing.T) {
	db, mock := newMigrationMock(t, 1)

	statuses, err := NewRunnerFS(twoStepFS()).Status(context.Background(), db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != 2 || !statuses[0].Applied || statuses[1].Applied {
		t.Fatalf("statuses = %+v", statuses)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
