package models

import "strings"

// Level is the ordinal scale shared by findings, sensitivity thresholds and
// alert severities.
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

var levelOrder = []Level{LevelNone, LevelLow, LevelModerate, LevelHigh, LevelVeryHigh}

var levelAliases = map[string]Level{
	"none":      LevelNone,
	"normal":    LevelNone,
	"ok":        LevelNone,
	"low":       LevelLow,
	"mild":      LevelLow,
	"moderate":  LevelModerate,
	"medium":    LevelModerate,
	"elevated":  LevelModerate,
	"high":      LevelHigh,
	"very_high": LevelVeryHigh,
	"very high": LevelVeryHigh,
	"very-high": LevelVeryHigh,
	"critical":  LevelVeryHigh,
	"severe":    LevelVeryHigh,
}

// ParseLevel normalises a textual level. The second return is false when the
// value is not a recognised level.
func ParseLevel(value string) (Level, bool) {
	level, ok := levelAliases[strings.ToLower(strings.TrimSpace(value))]
	return level, ok
}

func (l Level) Rank() int {
	for i, candidate := range levelOrder {
		if candidate == l {
			return i
		}
	}
	return 0
}

func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

func (l Level) Valid() bool {
	_, ok := levelAliases[string(l)]
	return ok && l == levelAliases[string(l)]
}

// LevelFromRank clamps rank into the scale.
func LevelFromRank(rank int) Level {
	if rank < 0 {
		return LevelNone
	}
	if rank >= len(levelOrder) {
		return LevelVeryHigh
	}
	return levelOrder[rank]
}

func (l Level) String() string {
	return string(l)
}
