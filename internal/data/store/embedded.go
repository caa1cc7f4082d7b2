package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// EmbeddedFileStore keeps progression in a single SQLite file under the data
// directory.
type EmbeddedFileStore struct {
	path string
	db   *gorm.DB
	pool *Pool
	tbl  table
	log  *logger.Logger
}

var _ Backend = (*EmbeddedFileStore)(nil)

func NewEmbeddedFileStore(cfg Config, baseLog *logger.Logger) (*EmbeddedFileStore, error) {
	cfg = cfg.withDefaults()
	serviceLog := baseLog.With("service", "EmbeddedFileStore")

	path, err := ensureDatabaseFile(cfg.DataDir, cfg.FileName)
	if err != nil {
		serviceLog.Error("Could not create SQLite database file", "data_dir", cfg.DataDir, "error", err)
		return nil, perr.Op("open", "", perr.ErrConnectivity, err)
	}

	// Immediate transactions take the write lock up front so concurrent
	// upserts wait on the busy timeout instead of failing a lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate",
		path, cfg.ConnectTimeout.Milliseconds())
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(serviceLog))
	if err != nil {
		return nil, perr.Op("open", "", perr.ErrConnectivity, err)
	}
	pool, err := NewPool(db, cfg.PoolSize, serviceLog)
	if err != nil {
		return nil, perr.Op("open", "", perr.ErrConnectivity, err)
	}

	loc := cfg.Location
	s := &EmbeddedFileStore{
		path: path,
		db:   db,
		pool: pool,
		log:  serviceLog,
	}
	s.tbl = table{
		name:     cfg.TableName,
		pool:     pool,
		log:      serviceLog,
		loc:      loc,
		classify: classifySQLiteError,
		encodeStamp: func(t time.Time) any {
			return FormatStamp(t, loc)
		},
		// DATETIME columns are decoded by the driver otherwise; the text
		// form is parsed here so malformed values surface as ErrParse.
		selectStamp: func(column string) string {
			return fmt.Sprintf("CAST(%s AS TEXT)", column)
		},
	}
	serviceLog.Info("Opened embedded store", "path", path, "table", cfg.TableName, "pool_size", pool.Stats().Capacity)
	return s, nil
}

func ensureDatabaseFile(dir, name string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return "", fmt.Errorf("create database file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func classifySQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrPerm, sqlite3.ErrIoErr:
			return perr.ErrConnectivity
		}
	}
	return perr.ErrStore
}

func (s *EmbeddedFileStore) Kind() Kind   { return KindEmbedded }
func (s *EmbeddedFileStore) Path() string { return s.path }
func (s *EmbeddedFileStore) Pool() *Pool  { return s.pool }

func (s *EmbeddedFileStore) IsReachable(ctx context.Context) bool {
	if err := s.pool.Ping(ctx); err != nil {
		s.log.Error("Unable to connect to database", "path", s.path, "error", err)
		return false
	}
	return true
}

func (s *EmbeddedFileStore) HasSchema(ctx context.Context) bool { return s.tbl.hasSchema(ctx) }

func (s *EmbeddedFileStore) EnsureSchema(ctx context.Context) error {
	return s.tbl.ensureSchema(ctx)
}

func (s *EmbeddedFileStore) Fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error) {
	return s.tbl.fetch(ctx, playerID)
}

func (s *EmbeddedFileStore) Exists(ctx context.Context, playerID uuid.UUID) (bool, error) {
	return s.tbl.exists(ctx, playerID)
}

func (s *EmbeddedFileStore) Upsert(ctx context.Context, rec *domain.Record) error {
	return s.tbl.upsert(ctx, rec)
}

func (s *EmbeddedFileStore) ReadTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) (time.Time, error) {
	return s.tbl.readTimestamp(ctx, playerID, field)
}

func (s *EmbeddedFileStore) WriteTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error {
	return s.tbl.writeTimestamp(ctx, playerID, field, at)
}

func (s *EmbeddedFileStore) Close() error {
	return s.pool.Close()
}
