package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/client/migrations"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/records"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const busyTimeoutMillis = 5000

type Options struct {
	DatabasePath       string
	WatchInterval      time.Duration
	ChangeLogRetention int
	Logger             logging.Logger
}

// Stores is the storage of one instance.
type Stores struct {
	Origin   string
	Durable  *sql.DB
	Session  *sql.DB
	Records  *records.SQLiteRepository
	Sessions *session.SQLiteRepository
	Watcher  *records.Watcher
}

func Open(ctx context.Context, opts Options) (*Stores, error) {
	durable, err := OpenDurable(ctx, opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	sess, err := OpenSession(ctx)
	if err != nil {
		_ = durable.Close()
		return nil, err
	}

	origin := uuid.NewString()
	logger := opts.Logger.With("instance", origin)

	return &Stores{
		Origin:   origin,
		Durable:  durable,
		Session:  sess,
		Records:  records.NewSQLiteRepository(durable, origin, records.WithRetention(opts.ChangeLogRetention)),
		Sessions: session.NewSQLiteRepository(sess),
		Watcher:  records.NewWatcher(durable, origin, opts.WatchInterval, logger),
	}, nil
}

func (s *Stores) Close() error {
	return errors.Join(s.Session.Close(), s.Durable.Close())
}

// DurableDSN builds the modernc.org/sqlite DSN for the shared database file.
func DurableDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busyTimeoutMillis)
}

// OpenDurable opens (creating if needed) and migrates the shared database.
func OpenDurable(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, ErrEmptyDatabasePath
	}

	path, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", DurableDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := RunMigrations(ctx, db, migrations.Durable()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSession opens the private session database. It lives in memory, so it
// is pinned to a single connection.
func OpenSession(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := RunMigrations(ctx, db, migrations.Session()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func RunMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
