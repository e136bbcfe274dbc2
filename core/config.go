package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config parameterises event valuation and the level cost curve.
type Config struct {
	BaseXPPerStoryPoint float64 `json:"base_xp_per_story_point" yaml:"base_xp_per_story_point" validate:"gt=0"`
	PRMergeBonus        float64 `json:"pr_merge_bonus" yaml:"pr_merge_bonus" validate:"gte=0"`
	MicroCapPerDay      float64 `json:"micro_cap_per_day" yaml:"micro_cap_per_day" validate:"gt=0"`
	MaxStreakMultiplier float64 `json:"max_streak_multiplier" yaml:"max_streak_multiplier" validate:"gt=0"`
	LevelA              float64 `json:"level_a" yaml:"level_a" validate:"gte=0.5"`
	LevelAlpha          float64 `json:"level_alpha" yaml:"level_alpha" validate:"gt=0"`
}

// DefaultConfig returns the stock tuning used when callers supply none.
func DefaultConfig() Config {
	return Config{
		BaseXPPerStoryPoint: 25,
		PRMergeBonus:        0.2,
		MicroCapPerDay:      60,
		MaxStreakMultiplier: 2.5,
		LevelA:              100,
		LevelAlpha:          1.15,
	}
}

var configValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every field outside its allowed range.
func (c Config) Validate() error {
	var errs []string
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"base_xp_per_story_point", c.BaseXPPerStoryPoint},
		{"pr_merge_bonus", c.PRMergeBonus},
		{"micro_cap_per_day", c.MicroCapPerDay},
		{"max_streak_multiplier", c.MaxStreakMultiplier},
		{"level_a", c.LevelA},
		{"level_alpha", c.LevelAlpha},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, f.name+" must be finite")
		}
	}
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			errs = append(errs, fieldMessage(fe))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be > %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// MinLevelA is the smallest curve scale for which every level costs at
// least 1 XP.
const MinLevelA = 0.5

// curveValid guards the resolver loops: they only terminate for a finite cost
// curve that is increasing and charges every level at least 1 XP.
func (c Config) curveValid() error {
	if !(c.LevelA >= MinLevelA) || math.IsInf(c.LevelA, 0) {
		return fmt.Errorf("%w: level_a must be a finite number >= %v, got %v", ErrInvalidConfig, MinLevelA, c.LevelA)
	}
	if !(c.LevelAlpha > 0) || math.IsInf(c.LevelAlpha, 0) {
		return fmt.Errorf("%w: level_alpha must be a positive finite number, got %v", ErrInvalidConfig, c.LevelAlpha)
	}
	return nil
}
