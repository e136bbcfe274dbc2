package core

import "math"

const (
	streakCoefficient = 0.2
	streakExponent    = 0.6
)

// StreakMultiplier returns 1 + 0.2*s^0.6 clamped to cfg.MaxStreakMultiplier.
// Negative streaks count as zero.
func StreakMultiplier(streakDays int, cfg Config) float64 {
	s := math.Max(0, float64(streakDays))
	m := 1 + streakCoefficient*math.Pow(s, streakExponent)
	return math.Min(cfg.MaxStreakMultiplier, m)
}

// ValueEvent converts a single work event into an XP award.
//
// Docs and quest events are worth their flat amount scaled by the streak
// multiplier, truncated so that microXPAwardedToday plus the award never
// exceeds cfg.MicroCapPerDay. All other kinds are worth their story points
// times cfg.BaseXPPerStoryPoint, with cfg.PRMergeBonus added for merges that
// close an issue, scaled by the multiplier. The result is never negative.
func ValueEvent(ev Event, streakDays int, microXPAwardedToday int64, cfg Config) int64 {
	m := StreakMultiplier(streakDays, cfg)
	if ev.IsMicro() {
		return microXP(ev, m, microXPAwardedToday, cfg)
	}

	bonus := 0.0
	if ev.Kind == KindPRMerged && ev.closesIssue() {
		bonus = cfg.PRMergeBonus
	}
	raw := ev.storyPoints() * cfg.BaseXPPerStoryPoint * (1 + bonus)
	return nonNegative(roundHalfAway(raw * m))
}

func microXP(ev Event, m float64, awardedToday int64, cfg Config) int64 {
	base := roundHalfAway(ev.flatXP() * m)
	allowed := math.Max(0, cfg.MicroCapPerDay-float64(awardedToday))
	return nonNegative(math.Min(base, math.Floor(allowed)))
}

func nonNegative(v float64) int64 {
	if !(v > 0) {
		return 0
	}
	return toInt64(v)
}
