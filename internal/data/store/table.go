package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// table holds the keyed queries against the progression table. It is
// immutable after construction; each backend owns its own copy and supplies
// the parts that differ per engine.
type table struct {
	name     string
	pool     *Pool
	log      *logger.Logger
	loc      *time.Location
	classify func(error) error
	// encodeStamp turns a moment into the value bound for a timestamp column.
	encodeStamp func(time.Time) any
	// selectStamp wraps a timestamp column in the SELECT list.
	selectStamp func(column string) string
}

func (t table) fail(op string, playerID uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	var opErr *perr.OpError
	if errors.As(err, &opErr) {
		return err
	}
	key := ""
	if playerID != uuid.Nil {
		key = playerID.String()
	}
	return perr.Op(op, key, t.classify(err), err)
}

func (t table) hasSchema(ctx context.Context) bool {
	err := t.pool.Do(ctx, "has_schema", func(conn *gorm.DB) error {
		m := conn.Table(t.name).Migrator()
		if !m.HasTable(t.name) {
			return fmt.Errorf("table %s missing", t.name)
		}
		for _, col := range progressionColumns {
			if !conn.Table(t.name).Migrator().HasColumn(&playerRow{}, col) {
				return fmt.Errorf("column %s.%s missing", t.name, col)
			}
		}
		return nil
	})
	if err != nil {
		t.log.Debug("Schema check failed", "table", t.name, "error", err)
		return false
	}
	return true
}

func (t table) ensureSchema(ctx context.Context) error {
	err := t.pool.Do(ctx, "ensure_schema", func(conn *gorm.DB) error {
		return conn.Table(t.name).AutoMigrate(&playerRow{})
	})
	if err != nil {
		return perr.Op("ensure_schema", "", perr.ErrSchema, err)
	}
	return nil
}

func (t table) fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error) {
	var rec *domain.Record
	err := t.pool.Do(ctx, "fetch", func(conn *gorm.DB) error {
		rows, err := conn.Table(t.name).
			Select(fmt.Sprintf(
				"player_id, display_name, level, total_xp, xp_display_mode, %s, %s",
				t.selectStamp("last_reward_claimed"),
				t.selectStamp("last_special_drop"),
			)).
			Where("player_id = ?", playerID.String()).
			Limit(1).
			Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}

		var (
			id, name           string
			level, xp, mode    int
			rewardRaw, dropRaw rawStamp
		)
		if err := rows.Scan(&id, &name, &level, &xp, &mode, &rewardRaw, &dropRaw); err != nil {
			return err
		}
		rec = &domain.Record{
			PlayerID:      playerID,
			DisplayName:   name,
			Level:         level,
			TotalXP:       xp,
			XPDisplayMode: domain.DisplayMode(mode),
		}
		rec.LastRewardClaimedAt = t.optionalStamp(playerID, domain.LastRewardClaimed, rewardRaw)
		rec.LastSpecialDropAt = t.optionalStamp(playerID, domain.LastSpecialDrop, dropRaw)
		return rows.Err()
	})
	if err != nil {
		return nil, t.fail("fetch", playerID, err)
	}
	return rec, nil
}

func (t table) optionalStamp(playerID uuid.UUID, field domain.StampField, raw rawStamp) *time.Time {
	ts, ok, err := raw.decode(t.loc)
	if err != nil {
		t.log.Warn("Ignoring malformed timestamp", "op", "fetch", "player_id", playerID, "field", field.Column(), "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &ts
}

func (t table) exists(ctx context.Context, playerID uuid.UUID) (bool, error) {
	var count int64
	err := t.pool.Do(ctx, "exists", func(conn *gorm.DB) error {
		return conn.Table(t.name).
			Where("player_id = ?", playerID.String()).
			Count(&count).Error
	})
	if err != nil {
		return false, t.fail("exists", playerID, err)
	}
	return count > 0, nil
}

// upsert takes the update path for known keys and otherwise inserts with a
// conflict clause, so a concurrent insert of the same key turns into an
// update instead of a duplicate-key failure.
func (t table) upsert(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return perr.Op("upsert", "", perr.ErrStore, errors.New("nil record"))
	}
	values := map[string]any{
		"display_name":    rec.DisplayName,
		"level":           rec.Level,
		"total_xp":        rec.TotalXP,
		"xp_display_mode": int(rec.XPDisplayMode),
	}
	inserted := false
	err := t.pool.Do(ctx, "upsert", func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Table(t.name).Where("player_id = ?", rec.PlayerID.String()).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return tx.Table(t.name).
					Where("player_id = ?", rec.PlayerID.String()).
					Updates(values).Error
			}
			row := map[string]any{"player_id": rec.PlayerID.String()}
			for k, v := range values {
				row[k] = v
			}
			inserted = true
			return tx.Table(t.name).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "player_id"}},
					DoUpdates: clause.AssignmentColumns(mutableColumns),
				}).
				Create(row).Error
		})
	})
	if err != nil {
		return t.fail("upsert", rec.PlayerID, err)
	}
	t.log.Debug("Stored progression", "player_id", rec.PlayerID, "inserted", inserted, "level", rec.Level, "total_xp", rec.TotalXP)
	return nil
}

func (t table) readTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) (time.Time, error) {
	col := field.Column()
	if col == "" {
		return domain.Never, perr.Op("read_timestamp", playerID.String(), perr.ErrStore, fmt.Errorf("unknown field %d", field))
	}
	var raw rawStamp
	found := false
	err := t.pool.Do(ctx, "read_timestamp", func(conn *gorm.DB) error {
		rows, err := conn.Table(t.name).
			Select(t.selectStamp(col)).
			Where("player_id = ?", playerID.String()).
			Limit(1).
			Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		found = true
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		return rows.Err()
	})
	if err != nil {
		return domain.Never, t.fail("read_timestamp", playerID, err)
	}
	if !found {
		return domain.Never, perr.Op("read_timestamp", playerID.String(), perr.ErrNotFound, nil)
	}
	ts, _, decodeErr := raw.decode(t.loc)
	if decodeErr != nil {
		return domain.Never, perr.Op("read_timestamp", playerID.String(), perr.ErrParse, decodeErr)
	}
	return ts, nil
}

func (t table) writeTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error {
	col := field.Column()
	if col == "" {
		return perr.Op("write_timestamp", playerID.String(), perr.ErrStore, fmt.Errorf("unknown field %d", field))
	}
	var affected int64
	err := t.pool.Do(ctx, "write_timestamp", func(conn *gorm.DB) error {
		res := conn.Table(t.name).
			Where("player_id = ?", playerID.String()).
			Update(col, t.encodeStamp(at))
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return t.fail("write_timestamp", playerID, err)
	}
	if affected == 0 {
		return perr.Op("write_timestamp", playerID.String(), perr.ErrNotFound, nil)
	}
	return nil
}
