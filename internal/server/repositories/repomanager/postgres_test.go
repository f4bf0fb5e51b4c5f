package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/files"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/records"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/relations"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/users"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	var _ users.Repository = m.Users(db)
	var _ refreshtokens.Repository = m.RefreshTokens(db)
	var _ records.Repository = m.Records(db)
	var _ files.Repository = m.Files(db)
	var _ relations.Repository = m.Relations(db)

	if _, ok := m.Records(db).(*records.PostgresRepository); !ok {
		t.Fatal("Records() is not the postgres implementation")
	}
}

func TestRunMigrations_UsesEmbeddedSchema(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := migrate
	t.Cleanup(func() { migrate = orig })

	var names []string
	migrate = func(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS) error {
		if dialect != "pgx" {
			return errors.New("unexpected dialect " + dialect)
		}
		var err error
		names, err = fs.Glob(fsys, "*.sql")
		return err
	}

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if len(names) != 3 || names[0] != "00001_init.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := migrate
	t.Cleanup(func() { migrate = orig })
	migrate = func(context.Context, *sql.DB, string, fs.FS) error { return errors.New("boom") }

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
