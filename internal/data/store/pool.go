package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/noni/smptweaks/internal/pkg/ctxutil"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// Pool bounds concurrent connections to a backend and hands out one
// dedicated connection per logical operation.
type Pool struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
	log      *logger.Logger
}

type PoolStats struct {
	Capacity int
	InUse    int
	Open     int
	WaitTime time.Duration
}

func NewPool(db *gorm.DB, capacity int, baseLog *logger.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	if capacity <= 0 {
		capacity = DefaultPoolSize
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(capacity)
	sqlDB.SetMaxIdleConns(capacity)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &Pool{
		db:       db,
		sqlDB:    sqlDB,
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		log:      baseLog.With("component", "ConnectionPool"),
	}, nil
}

// Do runs fn on a dedicated connection. The slot and the connection are
// released on every exit path; a panic inside fn is returned as an error
// wrapping ErrStore. Do blocks while the pool is exhausted, bounded only by
// ctx.
func (p *Pool) Do(ctx context.Context, op string, fn func(conn *gorm.DB) error) (err error) {
	ctx = ctxutil.Default(ctx)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return perr.Op(op, "", perr.ErrConnectivity, err)
	}
	p.inUse.Add(1)
	defer func() {
		p.inUse.Add(-1)
		p.sem.Release(1)
	}()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Store operation panic", "op", op, "panic", r)
			err = perr.Op(op, "", perr.ErrStore, fmt.Errorf("panic: %v", r))
		}
	}()

	return p.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		return fn(tx.Session(&gorm.Session{NewDB: true}))
	})
}

// Ping opens and immediately releases one connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Do(ctx, "ping", func(conn *gorm.DB) error {
		return conn.Exec("SELECT 1").Error
	})
}

func (p *Pool) Stats() PoolStats {
	st := p.sqlDB.Stats()
	return PoolStats{
		Capacity: p.capacity,
		InUse:    int(p.inUse.Load()),
		Open:     st.OpenConnections,
		WaitTime: st.WaitDuration,
	}
}

func (p *Pool) Close() error {
	return p.sqlDB.Close()
}
