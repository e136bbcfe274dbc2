package core

import (
	"errors"
	"math"
)

var (
	// ErrInvalidConfig is returned when a configuration cannot drive the model.
	ErrInvalidConfig = errors.New("invalid xp config")
	// ErrOverflow is returned when an XP total would not fit in an int64.
	ErrOverflow = errors.New("integer overflow")
	// ErrLevelOutOfRange is returned when a total or level lies past MaxLevel.
	ErrLevelOutOfRange = errors.New("level out of range")
)

// EventKind enumerates the work events that earn XP.
type EventKind string

const (
	KindIssueClosed EventKind = "issue_closed"
	KindPRMerged    EventKind = "pr_merged"
	KindDocs        EventKind = "docs"
	KindQuest       EventKind = "quest"
)

// DefaultFlatXP is granted by docs and quest events that carry no flat amount.
const DefaultFlatXP = 10

// Event is a single unit of work to be valued. Nil fields are absent.
type Event struct {
	Kind        EventKind `json:"kind" validate:"required"`
	StoryPoints *float64  `json:"story_points,omitempty"`
	FlatXP      *float64  `json:"flat_xp,omitempty"`
	ClosesIssue *bool     `json:"closes_issue,omitempty"`
}

func IssueClosed(storyPoints float64) Event {
	return Event{Kind: KindIssueClosed, StoryPoints: &storyPoints}
}

func PRMerged(storyPoints float64, closesIssue bool) Event {
	return Event{Kind: KindPRMerged, StoryPoints: &storyPoints, ClosesIssue: &closesIssue}
}

func Docs(flatXP float64) Event {
	return Event{Kind: KindDocs, FlatXP: &flatXP}
}

func Quest(flatXP float64) Event {
	return Event{Kind: KindQuest, FlatXP: &flatXP}
}

// IsMicro reports whether the event draws from the daily micro-XP allowance.
func (e Event) IsMicro() bool {
	return e.Kind == KindDocs || e.Kind == KindQuest
}

// Known reports whether Kind is one of the four recognised kinds.
func (e Event) Known() bool {
	switch e.Kind {
	case KindIssueClosed, KindPRMerged, KindDocs, KindQuest:
		return true
	}
	return false
}

func (e Event) storyPoints() float64 {
	if e.StoryPoints == nil {
		return 0
	}
	return math.Max(0, *e.StoryPoints)
}

func (e Event) flatXP() float64 {
	if e.FlatXP == nil {
		return DefaultFlatXP
	}
	return *e.FlatXP
}

func (e Event) closesIssue() bool {
	return e.ClosesIssue != nil && *e.ClosesIssue
}

// WithStoryPoints returns a copy of e carrying sp story points.
func (e Event) WithStoryPoints(sp float64) Event {
	e.StoryPoints = &sp
	return e
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	return base + delta, nil
}

// roundHalfAway rounds to the nearest integer, halves away from zero.
func roundHalfAway(v float64) float64 {
	return math.Round(v)
}

// toInt64 converts a rounded float to int64, saturating at the type bounds.
func toInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}
