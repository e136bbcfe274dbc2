package core

import "math"

// AcceleratedAlphaThreshold is the curve exponent above which ResolveLevel
// seeds its climb from the analytic inverse instead of starting at level 1.
const AcceleratedAlphaThreshold = 0.5

// MaxLevel is the highest level the resolvers report. Totals that would
// complete it resolve to ErrLevelOutOfRange.
const MaxLevel = 1 << 22

// seedBackoff is how many levels below the analytic guess the accelerated
// climb starts.
const seedBackoff = 3

// LevelState is the display-ready position of a total on the level curve.
// IntoLevelXP is always strictly below LevelNeed.
type LevelState struct {
	Level       int64 `json:"level"`
	IntoLevelXP int64 `json:"into_level_xp"`
	LevelNeed   int64 `json:"level_need"`
}

// ToNext is the XP still missing to complete the current level.
func (s LevelState) ToNext() int64 { return s.LevelNeed - s.IntoLevelXP }

// Progress is the completed fraction of the current level in [0, 1).
func (s LevelState) Progress() float64 {
	if s.LevelNeed <= 0 {
		return 0
	}
	return float64(s.IntoLevelXP) / float64(s.LevelNeed)
}

// RequiredXP is the cost of completing level: round(A * level^Alpha).
// Levels below 1 cost nothing.
func RequiredXP(level int64, cfg Config) int64 {
	if level < 1 {
		return 0
	}
	return toInt64(roundHalfAway(cfg.LevelA * math.Pow(float64(level), cfg.LevelAlpha)))
}

// CumulativeXPApprox estimates the XP needed to complete levels 1..level as
// the integral of the cost curve plus an Euler-Maclaurin half-term.
func CumulativeXPApprox(level int64, cfg Config) float64 {
	if level <= 0 {
		return 0
	}
	a, alpha := cfg.LevelA, cfg.LevelAlpha
	l := float64(level)
	main := (a / (alpha + 1)) * (math.Pow(l, alpha+1) - 1)
	em := 0.5 * a * math.Pow(l, alpha)
	return main + em
}

// ResolveLevel maps a lifetime XP total onto the level curve. Steep curves
// take the accelerated path; both paths return identical results.
func ResolveLevel(totalXP int64, cfg Config) (LevelState, error) {
	if cfg.LevelAlpha > AcceleratedAlphaThreshold {
		return ResolveLevelAccelerated(totalXP, cfg)
	}
	return ResolveLevelExact(totalXP, cfg)
}

// ResolveLevelExact walks the curve from level 1, paying each level's cost
// until the remainder no longer covers the next one.
func ResolveLevelExact(totalXP int64, cfg Config) (LevelState, error) {
	if err := cfg.curveValid(); err != nil {
		return LevelState{Level: 1}, err
	}
	total := max(0, totalXP)
	if pastMaxLevel(total, cfg) {
		return LevelState{Level: MaxLevel}, ErrLevelOutOfRange
	}
	return climb(1, total, cfg)
}

// ResolveLevelAccelerated inverts the integral of the cost curve to guess the
// level, backs off below the guess, and finishes with the exact climb. The
// remainder at the seed is computed from exact per-level costs, so the result
// matches ResolveLevelExact for every input.
func ResolveLevelAccelerated(totalXP int64, cfg Config) (LevelState, error) {
	if err := cfg.curveValid(); err != nil {
		return LevelState{Level: 1}, err
	}
	total := max(0, totalXP)
	if pastMaxLevel(total, cfg) {
		return LevelState{Level: MaxLevel}, ErrLevelOutOfRange
	}

	level := max(1, initialGuess(total, cfg)-seedBackoff)
	for level > 1 && CumulativeXPApprox(level-1, cfg) > float64(total) {
		level--
	}

	t := curves.get(cfg)
	below := t.cumulative(level - 1)
	// the approximation can still overshoot on rounding-heavy curves
	for level > 1 && below > total {
		level--
		below = t.cumulative(level - 1)
	}
	return climb(level, total-below, cfg)
}

func climb(level, remaining int64, cfg Config) (LevelState, error) {
	for {
		need := RequiredXP(level, cfg)
		if remaining < need {
			return LevelState{Level: level, IntoLevelXP: remaining, LevelNeed: need}, nil
		}
		remaining -= need
		level++
		if level > MaxLevel {
			return LevelState{Level: MaxLevel}, ErrLevelOutOfRange
		}
	}
}

// pastMaxLevel reports totals that certainly complete MaxLevel. It compares
// against an upper bound on CumulativeXP(MaxLevel): for an increasing cost
// curve the sum is at most the integral plus the last term, and rounding adds
// at most half a point per level. Totals below the bound are left to climb.
func pastMaxLevel(total int64, cfg Config) bool {
	n := float64(MaxLevel)
	last := cfg.LevelA * math.Pow(n, cfg.LevelAlpha)
	bound := (CumulativeXPApprox(MaxLevel, cfg)+0.5*last+0.5*n)*(1+1e-9) + 1
	return float64(total) > bound
}

// initialGuess inverts the leading integral term:
// L0 = floor(((total*(alpha+1))/A + 1)^(1/(alpha+1))).
func initialGuess(total int64, cfg Config) int64 {
	alpha := cfg.LevelAlpha
	g := math.Floor(math.Pow(float64(total)*(alpha+1)/cfg.LevelA+1, 1/(alpha+1)))
	if !(g >= 1) {
		return 1
	}
	if g > MaxLevel {
		return MaxLevel
	}
	return int64(g)
}

// LevelCost describes one row of the level curve.
type LevelCost struct {
	Level      int64 `json:"level"`
	Required   int64 `json:"required"`
	Cumulative int64 `json:"cumulative"`
}

// CumulativeXP is the exact XP needed to complete levels 1..level.
func CumulativeXP(level int64, cfg Config) (int64, error) {
	if err := cfg.curveValid(); err != nil {
		return 0, err
	}
	if level > MaxLevel {
		return 0, ErrLevelOutOfRange
	}
	return curves.get(cfg).cumulative(level), nil
}

// LevelCurve lists the cost rows for levels from..to inclusive.
func LevelCurve(from, to int64, cfg Config) ([]LevelCost, error) {
	if err := cfg.curveValid(); err != nil {
		return nil, err
	}
	from = max(1, from)
	if to < from {
		return nil, nil
	}
	if to > MaxLevel {
		return nil, ErrLevelOutOfRange
	}
	sum := curves.get(cfg).cumulative(from - 1)
	out := make([]LevelCost, 0, to-from+1)
	for l := from; l <= to; l++ {
		need := RequiredXP(l, cfg)
		sum = saturatingAdd(sum, need)
		out = append(out, LevelCost{Level: l, Required: need, Cumulative: sum})
	}
	return out, nil
}
