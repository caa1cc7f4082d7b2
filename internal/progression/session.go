package progression

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
)

// session is the live record of an online player.
type session struct {
	rec *domain.Record
	// persist is false when the stored record could not be read; flushing
	// the default record would overwrite real progress.
	persist bool
}

// Join returns the live record for playerID, loading it or creating defaults
// when the player is not online yet. A first-time player's record is stored
// immediately so cooldown stamps have a row to land on.
func (m *Manager) Join(ctx context.Context, playerID uuid.UUID, displayName string) Result[*domain.Record] {
	if m.closed.Load() {
		return fallback[*domain.Record](nil, ErrShutdown)
	}
	m.mu.Lock()
	if s, found := m.sessions[playerID]; found {
		rec := s.rec.Clone()
		m.mu.Unlock()
		return ok(rec)
	}
	m.mu.Unlock()

	loaded := m.Load(ctx, playerID)
	s := &session{persist: true}
	reason := loaded.Reason
	switch {
	case loaded.Value != nil:
		s.rec = loaded.Value
		if displayName != "" {
			s.rec.DisplayName = displayName
		}
	case loaded.Reason != nil && !loaded.Degraded():
		m.log.Warn("Using default progression for this session, it will not be stored", "player_id", playerID, "error", loaded.Reason)
		s.rec = domain.NewRecord(playerID, displayName)
		s.persist = false
	default:
		s.rec = domain.NewRecord(playerID, displayName)
		if !loaded.Degraded() {
			reason = m.Save(ctx, s.rec).Reason
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Shutdown sets closed before it sweeps the registry under mu.
	if m.closed.Load() {
		return fallback(s.rec.Clone(), ErrShutdown)
	}
	if existing, found := m.sessions[playerID]; found {
		return ok(existing.rec.Clone())
	}
	m.sessions[playerID] = s
	m.metrics.SetActivePlayers(len(m.sessions))
	m.log.Debug("Player joined", "player_id", playerID, "level", s.rec.Level, "total_xp", s.rec.TotalXP, "existing", s.rec.ExistedBeforeLoad)
	return fallback(s.rec.Clone(), reason)
}

// Leave stores the live record and forgets it.
func (m *Manager) Leave(ctx context.Context, playerID uuid.UUID) Result[struct{}] {
	m.mu.Lock()
	s, found := m.sessions[playerID]
	if found {
		delete(m.sessions, playerID)
	}
	active := len(m.sessions)
	m.mu.Unlock()
	if !found {
		return ok(struct{}{})
	}
	m.metrics.SetActivePlayers(active)

	if !s.persist {
		m.metrics.IncFlush("leave", "skipped")
		return ok(struct{}{})
	}
	res := m.Save(ctx, s.rec)
	m.metrics.IncFlush("leave", flushStatus(res.Reason))
	return res
}

// Active returns a snapshot of the live record for playerID.
func (m *Manager) Active(playerID uuid.UUID) (*domain.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[playerID]
	if !found {
		return nil, false
	}
	return s.rec.Clone(), true
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// GainXP adds raw XP, scaled by the configured multiplier, to an online
// player and recomputes the level. It reports the resulting progress. With
// levels disabled the record is left as is.
func (m *Manager) GainXP(playerID uuid.UUID, rawXP int) (Progress, bool) {
	gained := ApplyMultiplier(rawXP, m.cfg.XPMultiplier)
	if m.cfg.LevelsDisabled {
		gained = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[playerID]
	if !found {
		return Progress{}, false
	}
	total := s.rec.TotalXP
	if gained > maxStoredXP-total {
		total = maxStoredXP
	} else {
		total += gained
	}
	s.rec.TotalXP = total
	s.rec.Level = m.cfg.Curve.LevelForTotalXP(total)
	return m.cfg.Curve.Progress(total), true
}

// Display renders the online player's progress in their chosen mode.
func (m *Manager) Display(playerID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[playerID]
	if !found {
		return "", false
	}
	return FormatProgress(s.rec.XPDisplayMode, m.cfg.Curve.Progress(s.rec.TotalXP)), true
}

// SetDisplayMode changes how the online player's progress is rendered. It
// reports false for offline players and unknown modes.
func (m *Manager) SetDisplayMode(playerID uuid.UUID, mode domain.DisplayMode) bool {
	if !mode.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[playerID]
	if !found {
		return false
	}
	s.rec.XPDisplayMode = mode
	return true
}

// FlushActive stores every online player without forgetting them.
func (m *Manager) FlushActive(ctx context.Context) error {
	if err := m.unavailable(); err != nil {
		return err
	}
	m.mu.Lock()
	pending := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		pending = append(pending, &session{rec: s.rec.Clone(), persist: s.persist})
	}
	m.mu.Unlock()

	errs := m.flushSessions(ctx, "autosave", pending)
	m.markStored(pending)
	return errors.Join(errs...)
}

// StartAutosave flushes online players every interval until ctx ends.
func (m *Manager) StartAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.closed.Load() {
					return
				}
				if err := m.FlushActive(ctx); err != nil && !errors.Is(err, perr.ErrDegraded) {
					m.log.Warn("Autosave incomplete", "error", err)
				}
			}
		}
	}()
}

// markStored copies the stored flag of flushed snapshots back to the live
// records.
func (m *Manager) markStored(flushed []*session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range flushed {
		if !f.rec.ExistedBeforeLoad {
			continue
		}
		if s, found := m.sessions[f.rec.PlayerID]; found {
			s.rec.ExistedBeforeLoad = true
		}
	}
}

func (m *Manager) flushSessions(ctx context.Context, trigger string, pending []*session) []error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(m.workers.Concurrency())
	for _, s := range pending {
		if !s.persist {
			m.metrics.IncFlush(trigger, "skipped")
			continue
		}
		g.Go(func() error {
			res := m.upsert(ctx, s.rec)
			m.metrics.IncFlush(trigger, flushStatus(res.Reason))
			if res.Reason != nil {
				mu.Lock()
				errs = append(errs, res.Reason)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func flushStatus(reason error) string {
	switch {
	case reason == nil:
		return "success"
	case errors.Is(reason, perr.ErrDegraded):
		return "skipped"
	default:
		return "error"
	}
}
