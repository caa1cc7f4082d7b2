package store

import "time"

// playerRow describes the progression table for schema creation. Queries go
// through column maps so the configured table name can be used.
type playerRow struct {
	PlayerID          string     `gorm:"column:player_id;type:varchar(36);primaryKey"`
	DisplayName       string     `gorm:"column:display_name;type:varchar(255);not null"`
	Level             int        `gorm:"column:level;type:smallint;not null;default:1"`
	TotalXP           int        `gorm:"column:total_xp;type:integer;not null;default:0"`
	XPDisplayMode     int        `gorm:"column:xp_display_mode;type:smallint;not null;default:0"`
	LastRewardClaimed *time.Time `gorm:"column:last_reward_claimed"`
	LastSpecialDrop   *time.Time `gorm:"column:last_special_drop"`
}

var progressionColumns = []string{
	"player_id",
	"display_name",
	"level",
	"total_xp",
	"xp_display_mode",
	"last_reward_claimed",
	"last_special_drop",
}

// mutableColumns are the columns an upsert rewrites for an existing key.
var mutableColumns = []string{"display_name", "level", "total_xp", "xp_display_mode"}
