package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// Kind selects a storage engine.
type Kind string

const (
	KindEmbedded  Kind = "embedded"
	KindNetworked Kind = "networked"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindEmbedded, "":
		return KindEmbedded, nil
	case KindNetworked:
		return KindNetworked, nil
	default:
		return "", fmt.Errorf("unknown store kind %q", raw)
	}
}

const (
	DefaultTableName = "smptweaks_player"
	DefaultPoolSize  = 10
	DefaultFileName  = "smptweaks.db"
)

// Backend is the uniform capability set both storage engines provide.
//
// Fetch returns (nil, nil) when no row matches. ReadTimestamp returns
// domain.Never for null or undecodable values; for the latter it also returns
// an error wrapping ErrParse. WriteTimestamp returns an error wrapping
// ErrNotFound when the key has no row.
type Backend interface {
	Kind() Kind
	IsReachable(ctx context.Context) bool
	HasSchema(ctx context.Context) bool
	EnsureSchema(ctx context.Context) error
	Fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error)
	Exists(ctx context.Context, playerID uuid.UUID) (bool, error)
	Upsert(ctx context.Context, rec *domain.Record) error
	ReadTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) (time.Time, error)
	WriteTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error
	Close() error
}

// Config carries the recognized store.* options.
type Config struct {
	Kind           Kind
	Dialect        Dialect
	DataDir        string
	FileName       string
	TableName      string
	Host           string
	Port           int
	Database       string
	Username       string
	Password       string
	PoolSize       int
	ConnectTimeout time.Duration
	Location       *time.Location
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.TableName) == "" {
		c.TableName = DefaultTableName
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if strings.TrimSpace(c.FileName) == "" {
		c.FileName = DefaultFileName
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Dialect == "" {
		c.Dialect = DialectPostgres
	}
	return c
}

// Open constructs the backend variant named by cfg.Kind. A non-nil error
// means persistence is unavailable for this session.
func Open(cfg Config, log *logger.Logger) (Backend, error) {
	cfg = cfg.withDefaults()
	switch cfg.Kind {
	case KindNetworked:
		return NewNetworkedStore(cfg, log)
	case KindEmbedded, "":
		return NewEmbeddedFileStore(cfg, log)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
