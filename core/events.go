package core

import "time"

// NoticeType enumerates the notices a ledger replay emits.
type NoticeType string

const (
	NoticeXPAwarded       NoticeType = "xp_awarded"
	NoticeLevelUp         NoticeType = "level_up"
	NoticeMicroCapReached NoticeType = "micro_cap_reached"
	NoticeStreakReset     NoticeType = "streak_reset"
)

// Notice is an immutable record of something that happened during a replay.
type Notice struct {
	Type     NoticeType     `json:"type"`
	Time     time.Time      `json:"time"`
	Date     string         `json:"date,omitempty"`
	Kind     EventKind      `json:"kind,omitempty"`
	XP       int64          `json:"xp,omitempty"`
	Total    int64          `json:"total,omitempty"`
	Level    int64          `json:"level,omitempty"`
	Streak   int            `json:"streak,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewXPAwarded(at time.Time, date string, kind EventKind, xp, total int64) Notice {
	return Notice{Type: NoticeXPAwarded, Time: at.UTC(), Date: date, Kind: kind, XP: xp, Total: total}
}

func NewLevelUp(at time.Time, date string, level, total int64) Notice {
	return Notice{Type: NoticeLevelUp, Time: at.UTC(), Date: date, Level: level, Total: total}
}

func NewMicroCapReached(at time.Time, date string, microXP int64) Notice {
	return Notice{Type: NoticeMicroCapReached, Time: at.UTC(), Date: date, XP: microXP}
}

func NewStreakReset(at time.Time, date string, previous int) Notice {
	return Notice{Type: NoticeStreakReset, Time: at.UTC(), Date: date, Streak: previous}
}

// Progress is a snapshot of a replay between two awards.
type Progress struct {
	Date    string     `json:"date"`
	Total   int64      `json:"total"`
	Level   LevelState `json:"level"`
	Streak  int        `json:"streak"`
	MicroXP int64      `json:"micro_xp"`
}
