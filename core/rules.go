package core

import "context"

// Rule derives notices from the progress change caused by a trigger notice.
type Rule interface {
	Evaluate(ctx context.Context, before, after Progress, trigger Notice) []Notice
}

// LevelUpRule emits a level up when an award moves the total onto a higher level.
type LevelUpRule struct{}

func (LevelUpRule) Evaluate(_ context.Context, before, after Progress, trigger Notice) []Notice {
	if trigger.Type != NoticeXPAwarded {
		return nil
	}
	if after.Level.Level > before.Level.Level {
		return []Notice{NewLevelUp(trigger.Time, after.Date, after.Level.Level, after.Total)}
	}
	return nil
}

// MicroCapRule emits once per day when micro awards reach the daily cap.
type MicroCapRule struct{ Cap int64 }

func (r MicroCapRule) Evaluate(_ context.Context, before, after Progress, trigger Notice) []Notice {
	if trigger.Type != NoticeXPAwarded || r.Cap <= 0 {
		return nil
	}
	if !(Event{Kind: trigger.Kind}).IsMicro() {
		return nil
	}
	if after.MicroXP >= r.Cap && (before.Date != after.Date || before.MicroXP < r.Cap) {
		return []Notice{NewMicroCapReached(trigger.Time, after.Date, after.MicroXP)}
	}
	return nil
}

// StreakResetRule emits when an idle gap restarts the streak.
type StreakResetRule struct{}

func (StreakResetRule) Evaluate(_ context.Context, before, after Progress, trigger Notice) []Notice {
	if trigger.Type != NoticeXPAwarded || before.Date == "" || before.Date == after.Date {
		return nil
	}
	if after.Streak <= before.Streak && before.Streak > 0 {
		return []Notice{NewStreakReset(trigger.Time, after.Date, before.Streak)}
	}
	return nil
}
