package progression

import (
	"time"

	"github.com/google/uuid"
)

// DisplayMode selects how progress inside the current level is rendered.
type DisplayMode int

const (
	DisplayFraction DisplayMode = iota
	DisplayPercentage
	DisplayHidden
)

func (m DisplayMode) Valid() bool {
	return m >= DisplayFraction && m <= DisplayHidden
}

func (m DisplayMode) String() string {
	switch m {
	case DisplayFraction:
		return "fraction"
	case DisplayPercentage:
		return "percentage"
	case DisplayHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// StampField names one of the nullable cooldown timestamps on a record.
type StampField int

const (
	LastRewardClaimed StampField = iota
	LastSpecialDrop
)

// Column is the stored column name for the field.
func (f StampField) Column() string {
	switch f {
	case LastRewardClaimed:
		return "last_reward_claimed"
	case LastSpecialDrop:
		return "last_special_drop"
	default:
		return ""
	}
}

func (f StampField) String() string { return f.Column() }

// Never is the "infinitely long ago" sentinel returned for timestamps that
// were never written or cannot be decoded.
var Never = time.Unix(0, 0).UTC()

const (
	DefaultLevel = 1
	DefaultXP    = 0
)

// Record is one player's progression as held in memory.
type Record struct {
	PlayerID            uuid.UUID
	DisplayName         string
	Level               int
	TotalXP             int
	XPDisplayMode       DisplayMode
	LastRewardClaimedAt *time.Time
	LastSpecialDropAt   *time.Time

	// ExistedBeforeLoad is set by the load path and never persisted.
	ExistedBeforeLoad bool
}

func NewRecord(id uuid.UUID, displayName string) *Record {
	return &Record{
		PlayerID:      id,
		DisplayName:   displayName,
		Level:         DefaultLevel,
		TotalXP:       DefaultXP,
		XPDisplayMode: DisplayFraction,
	}
}

// Clone returns a deep copy so callers can hand a snapshot to a background
// save while the live record keeps changing.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.LastRewardClaimedAt != nil {
		t := *r.LastRewardClaimedAt
		out.LastRewardClaimedAt = &t
	}
	if r.LastSpecialDropAt != nil {
		t := *r.LastSpecialDropAt
		out.LastSpecialDropAt = &t
	}
	return &out
}

// Stamp returns the timestamp for field, or Never when unset.
func (r *Record) Stamp(field StampField) time.Time {
	if r == nil {
		return Never
	}
	var t *time.Time
	switch field {
	case LastRewardClaimed:
		t = r.LastRewardClaimedAt
	case LastSpecialDrop:
		t = r.LastSpecialDropAt
	}
	if t == nil {
		return Never
	}
	return *t
}

// SetStamp records at for field.
func (r *Record) SetStamp(field StampField, at time.Time) {
	switch field {
	case LastRewardClaimed:
		r.LastRewardClaimedAt = &at
	case LastSpecialDrop:
		r.LastSpecialDropAt = &at
	}
}
