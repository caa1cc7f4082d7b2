package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noni/smptweaks/internal/data/store"
	domain "github.com/noni/smptweaks/internal/domain/progression"
	"github.com/noni/smptweaks/internal/observability"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
	"github.com/noni/smptweaks/internal/pkg/logger"
	"github.com/noni/smptweaks/internal/worker"
)

// ErrShutdown is the reason reported by calls made after Shutdown.
var ErrShutdown = errors.New("progression manager shut down")

const DefaultRewardCooldown = 24 * time.Hour

type ManagerConfig struct {
	Curve Curve
	// XPMultiplier scales gained XP; zero means 1.
	XPMultiplier   float64
	LevelsDisabled bool
	RewardCooldown time.Duration
	// RewardsDisabled makes RewardAvailable always report false.
	RewardsDisabled bool
	// Workers bounds background loads and saves.
	Workers int
	Metrics *observability.Metrics
	Now     func() time.Time
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.Curve == (Curve{}) {
		c.Curve = DefaultCurve
	}
	if c.XPMultiplier == 0 {
		c.XPMultiplier = 1
	}
	if c.RewardCooldown <= 0 {
		c.RewardCooldown = DefaultRewardCooldown
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Manager owns the store for one server session: the startup sequence, keyed
// reads and writes, and the registry of players currently online.
type Manager struct {
	log     *logger.Logger
	cfg     ManagerConfig
	metrics *observability.Metrics
	backend store.Backend
	// degraded is nil while persistence works.
	degraded error
	workers  *worker.Pool
	closed   atomic.Bool

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewManager runs the startup sequence against backend. openErr is whatever
// the backend constructor returned; a non-nil openErr, a nil backend, an
// unreachable store or a schema that cannot be created all leave the manager
// degraded, where every call is a logged no-op.
func NewManager(ctx context.Context, baseLog *logger.Logger, cfg ManagerConfig, backend store.Backend, openErr error) *Manager {
	began := time.Now()
	cfg = cfg.withDefaults()
	m := &Manager{
		log:      baseLog.With("service", "ProgressionManager"),
		cfg:      cfg,
		metrics:  cfg.Metrics,
		sessions: make(map[uuid.UUID]*session),
	}

	if err := m.startup(ctx, backend, openErr); err != nil {
		m.degraded = fmt.Errorf("%w: %w", perr.ErrDegraded, err)
		if backend != nil {
			if closeErr := backend.Close(); closeErr != nil {
				m.log.Warn("Closing unusable store failed", "error", closeErr)
			}
		}
	} else {
		m.backend = backend
	}
	m.metrics.SetDegraded(m.degraded != nil)

	m.workers = worker.NewPool(baseLog, cfg.Workers, cfg.Metrics)
	m.workers.Start(context.WithoutCancel(ctx))

	took := time.Since(began)
	m.metrics.ObserveStartup(took)
	m.log.Info(fmt.Sprintf("Up and running! Startup took %dms", took.Milliseconds()), "degraded", m.degraded != nil)
	return m
}

func (m *Manager) startup(ctx context.Context, backend store.Backend, openErr error) error {
	if openErr != nil || backend == nil {
		cause := openErr
		if cause == nil {
			cause = errors.New("no store configured")
		}
		m.log.Error("Could not open progression store, persistence disabled", "error", cause)
		return perr.Op("startup", "", perr.ErrConnectivity, cause)
	}
	kind := string(backend.Kind())
	if !backend.IsReachable(ctx) {
		m.log.Error("Unable to connect to database, persistence disabled", "backend", kind)
		return perr.Op("startup", "", perr.ErrConnectivity, errors.New("store unreachable"))
	}
	if !backend.HasSchema(ctx) {
		m.log.Info("Progression table missing, creating it", "backend", kind)
		if err := backend.EnsureSchema(ctx); err != nil {
			m.log.Error("Could not create progression table, persistence disabled", "backend", kind, "error", err)
			if errors.Is(err, perr.ErrSchema) {
				return err
			}
			return perr.Op("startup", "", perr.ErrSchema, err)
		}
	}
	m.log.Info("Successfully set up database", "backend", kind)
	return nil
}

// Degraded reports whether the manager runs without a store.
func (m *Manager) Degraded() bool { return m.degraded != nil }

// DegradedReason is the startup failure, or nil.
func (m *Manager) DegradedReason() error { return m.degraded }

// Ready reports whether the store is usable right now.
func (m *Manager) Ready(ctx context.Context) bool {
	if m.unavailable() != nil {
		return false
	}
	return m.backend.IsReachable(ctx)
}

func (m *Manager) unavailable() error {
	if m.closed.Load() {
		return ErrShutdown
	}
	return m.degraded
}

// Load reads the stored record for playerID. Value is nil both for players
// never seen before (Reason nil) and when the read could not be made.
func (m *Manager) Load(ctx context.Context, playerID uuid.UUID) Result[*domain.Record] {
	if m.closed.Load() {
		return fallback[*domain.Record](nil, ErrShutdown)
	}
	return m.load(ctx, playerID)
}

func (m *Manager) load(ctx context.Context, playerID uuid.UUID) Result[*domain.Record] {
	if m.degraded != nil {
		return fallback[*domain.Record](nil, m.degraded)
	}
	rec, err := m.backend.Fetch(ctx, playerID)
	if err != nil {
		m.log.Error("Failed to load progression", "player_id", playerID, "error", err)
		return fallback[*domain.Record](nil, err)
	}
	if rec == nil {
		return ok[*domain.Record](nil)
	}
	rec.ExistedBeforeLoad = true
	return ok(rec)
}

// Save writes rec. Failures are logged and reported through Reason only.
func (m *Manager) Save(ctx context.Context, rec *domain.Record) Result[struct{}] {
	if rec == nil {
		return fallback(struct{}{}, perr.Op("save", "", perr.ErrStore, errors.New("nil record")))
	}
	if m.closed.Load() {
		return fallback(struct{}{}, ErrShutdown)
	}
	return m.upsert(ctx, rec)
}

// upsert skips the shutdown guard so queued and final flushes still land
// while Shutdown drains.
func (m *Manager) upsert(ctx context.Context, rec *domain.Record) Result[struct{}] {
	if m.degraded != nil {
		return fallback(struct{}{}, m.degraded)
	}
	action := "insert"
	if rec.ExistedBeforeLoad {
		action = "update"
	}
	if err := m.backend.Upsert(ctx, rec); err != nil {
		m.log.Error("Failed to save progression", "player_id", rec.PlayerID, "action", action, "error", err)
		return fallback(struct{}{}, err)
	}
	m.log.Debug("Saved progression", "player_id", rec.PlayerID, "action", action, "level", rec.Level, "total_xp", rec.TotalXP)
	rec.ExistedBeforeLoad = true
	return ok(struct{}{})
}

func (m *Manager) GetLastRewardClaimed(ctx context.Context, playerID uuid.UUID) Result[time.Time] {
	return m.readStamp(ctx, playerID, domain.LastRewardClaimed)
}

func (m *Manager) MarkRewardClaimed(ctx context.Context, playerID uuid.UUID) Result[struct{}] {
	return m.writeStamp(ctx, playerID, domain.LastRewardClaimed)
}

func (m *Manager) GetLastSpecialDrop(ctx context.Context, playerID uuid.UUID) Result[time.Time] {
	return m.readStamp(ctx, playerID, domain.LastSpecialDrop)
}

func (m *Manager) MarkSpecialDrop(ctx context.Context, playerID uuid.UUID) Result[struct{}] {
	return m.writeStamp(ctx, playerID, domain.LastSpecialDrop)
}

// RewardAvailable reports whether the reward cooldown has elapsed since the
// last claim. A missing row or a malformed stamp counts as never claimed.
// Any other failure, degraded mode included, reports false: the claim could
// not be recorded either.
func (m *Manager) RewardAvailable(ctx context.Context, playerID uuid.UUID) Result[bool] {
	if m.cfg.RewardsDisabled {
		return ok(false)
	}
	last := m.GetLastRewardClaimed(ctx, playerID)
	if last.Reason != nil && !errors.Is(last.Reason, perr.ErrNotFound) && !errors.Is(last.Reason, perr.ErrParse) {
		return fallback(false, last.Reason)
	}
	available := m.cfg.Now().Sub(last.Value) >= m.cfg.RewardCooldown
	return Result[bool]{Value: available, Reason: last.Reason}
}

func (m *Manager) readStamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) Result[time.Time] {
	if err := m.unavailable(); err != nil {
		return fallback(domain.Never, err)
	}
	at, err := m.backend.ReadTimestamp(ctx, playerID, field)
	if err != nil {
		switch {
		case errors.Is(err, perr.ErrNotFound):
			m.log.Debug("No stored record for timestamp read", "player_id", playerID, "field", field.Column())
		case errors.Is(err, perr.ErrParse):
			m.log.Warn("Stored timestamp malformed, treating as never", "player_id", playerID, "field", field.Column(), "error", err)
		default:
			m.log.Error("Failed to read timestamp", "player_id", playerID, "field", field.Column(), "error", err)
		}
		return fallback(domain.Never, err)
	}
	return ok(at)
}

func (m *Manager) writeStamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) Result[struct{}] {
	if err := m.unavailable(); err != nil {
		return fallback(struct{}{}, err)
	}
	now := m.cfg.Now().Truncate(time.Second)
	if err := m.backend.WriteTimestamp(ctx, playerID, field, now); err != nil {
		if errors.Is(err, perr.ErrNotFound) {
			m.log.Warn("No stored record to stamp", "player_id", playerID, "field", field.Column())
		} else {
			m.log.Error("Failed to write timestamp", "player_id", playerID, "field", field.Column(), "error", err)
		}
		return fallback(struct{}{}, err)
	}

	m.mu.Lock()
	if s, found := m.sessions[playerID]; found {
		s.rec.SetStamp(field, now)
	}
	m.mu.Unlock()
	return ok(struct{}{})
}

// Shutdown drains background work, flushes every online player and closes
// the store. It returns the joined flush and close errors. When ctx ends
// before the drain completes the store is left open so queued saves can
// still land.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	drainErr := m.workers.Stop(ctx)
	if drainErr != nil {
		errs = append(errs, fmt.Errorf("drain workers: %w", drainErr))
	}

	m.mu.Lock()
	pending := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		pending = append(pending, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.metrics.SetActivePlayers(0)

	if m.degraded == nil {
		errs = append(errs, m.flushSessions(ctx, "shutdown", pending)...)
		// Queued saves may still be running after a timed-out drain; the
		// store stays open for them.
		if drainErr == nil {
			if err := m.backend.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		} else {
			m.log.Warn("Worker drain timed out, leaving store open for queued saves", "error", drainErr)
		}
	}
	m.log.Info("Progression manager stopped", "flushed", len(pending))
	return errors.Join(errs...)
}
