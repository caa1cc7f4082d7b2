package progression

import (
	"fmt"
	"math"

	domain "github.com/noni/smptweaks/internal/domain/progression"
)

// MaxLevel is the largest level the level column can hold.
const MaxLevel = math.MaxInt16

// maxStoredXP keeps adjusted XP inside the INTEGER total_xp column.
const maxStoredXP = math.MaxInt32

// Curve maps accumulated XP to levels. Advancing from level L to L+1 costs
// BaseXP + (L-1)*StepXP.
type Curve struct {
	BaseXP int
	StepXP int
}

var DefaultCurve = Curve{BaseXP: 100, StepXP: 50}

func (c Curve) normalized() Curve {
	if c.BaseXP < 1 {
		c.BaseXP = 1
	}
	if c.StepXP < 0 {
		c.StepXP = 0
	}
	return c
}

// XPToAdvance is the XP needed to go from level to level+1.
func (c Curve) XPToAdvance(level int) int {
	c = c.normalized()
	if level < 1 {
		level = 1
	}
	return c.BaseXP + (level-1)*c.StepXP
}

// TotalXPForLevel is the total XP at which level is first reached.
func (c Curve) TotalXPForLevel(level int) int {
	c = c.normalized()
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	n := level - 1
	return n*c.BaseXP + c.StepXP*n*(n-1)/2
}

func (c Curve) LevelForTotalXP(totalXP int) int {
	if totalXP <= 0 {
		return 1
	}
	lo, hi := 1, MaxLevel
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if c.TotalXPForLevel(mid) <= totalXP {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (c Curve) XPIntoCurrentLevel(totalXP int) int {
	if totalXP <= 0 {
		return 0
	}
	return totalXP - c.TotalXPForLevel(c.LevelForTotalXP(totalXP))
}

// Progress is the display-ready view of a total XP value.
type Progress struct {
	Level  int
	Into   int
	Needed int
}

func (c Curve) Progress(totalXP int) Progress {
	level := c.LevelForTotalXP(totalXP)
	return Progress{
		Level:  level,
		Into:   c.XPIntoCurrentLevel(totalXP),
		Needed: c.XPToAdvance(level),
	}
}

// Percent is the floor percentage of the way to the next level.
func (p Progress) Percent() int {
	if p.Needed <= 0 {
		return 0
	}
	return p.Into * 100 / p.Needed
}

// FormatProgress renders p according to the player's display mode.
func FormatProgress(mode domain.DisplayMode, p Progress) string {
	switch mode {
	case domain.DisplayPercentage:
		return fmt.Sprintf("%d%%", p.Percent())
	case domain.DisplayHidden:
		return ""
	default:
		return fmt.Sprintf("%d/%d", p.Into, p.Needed)
	}
}

// ApplyMultiplier scales raw XP, rounding half away from zero. The result is
// never negative.
func ApplyMultiplier(rawXP int, multiplier float64) int {
	if rawXP <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier <= 0 {
		return 0
	}
	v := math.Round(float64(rawXP) * multiplier)
	if v >= maxStoredXP {
		return maxStoredXP
	}
	return int(v)
}

func LevelForTotalXP(totalXP int) int    { return DefaultCurve.LevelForTotalXP(totalXP) }
func XPIntoCurrentLevel(totalXP int) int { return DefaultCurve.XPIntoCurrentLevel(totalXP) }
