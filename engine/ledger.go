package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"trackxp/core"
)

// ErrInvalidEvent is returned when a dated event cannot be placed or valued.
var ErrInvalidEvent = errors.New("invalid event")

const dayLayout = "2006-01-02"

// ledgerNamespace seeds deterministic entry IDs.
var ledgerNamespace = uuid.MustParse("8f0c6d3e-5b7a-4c1e-9d2f-3a6b8e1c4f70")

// DatedEvent is a work event stamped with the day it happened. Either At or
// Date must be set; Date (YYYY-MM-DD) wins when both are.
type DatedEvent struct {
	ID        string    `json:"id,omitempty"`
	At        time.Time `json:"at,omitzero"`
	Date      string    `json:"date,omitempty"`
	Ref       string    `json:"ref,omitempty"`
	Assignees int       `json:"assignees,omitempty"`
	core.Event
}

// LedgerEntry records the award for one replayed event.
type LedgerEntry struct {
	ID          string         `json:"id"`
	Date        string         `json:"date"`
	Ref         string         `json:"ref,omitempty"`
	Kind        core.EventKind `json:"kind"`
	StoryPoints float64        `json:"story_points,omitempty"`
	Assignees   int            `json:"assignees,omitempty"`
	Streak      int            `json:"streak"`
	Multiplier  float64        `json:"multiplier"`
	XP          int64          `json:"xp"`
	Total       int64          `json:"total"`
}

// DaySummary aggregates one active day.
type DaySummary struct {
	XP      int64 `json:"xp"`
	MicroXP int64 `json:"micro_xp"`
	Streak  int   `json:"streak"`
	Events  int   `json:"events"`
}

// Totals is the lifetime position after the replay.
type Totals struct {
	TotalXP int64 `json:"total_xp"`
	core.LevelState
}

// Report is the full result of a replay.
type Report struct {
	Ledger  []LedgerEntry         `json:"ledger"`
	Daily   map[string]DaySummary `json:"daily"`
	Totals  Totals                `json:"totals"`
	Notices []core.Notice         `json:"notices,omitempty"`
}

// ReplayOptions configures Replay. Zero values fall back to UTC, no bus,
// no rules and the default logger.
type ReplayOptions struct {
	Config   core.Config
	Location *time.Location
	Bus      *EventBus
	Rules    RuleEngine
	Logger   *slog.Logger
}

type placedEvent struct {
	DatedEvent
	index int
	at    time.Time
}

type activeDay struct {
	date   time.Time
	events []placedEvent
}

// Replay values a history of dated events day by day. Streaks count
// consecutive calendar days with at least one event and restart after an idle
// day; the micro allowance resets every day; story points are split evenly
// between assignees. Replay holds no state between calls.
func Replay(ctx context.Context, events []DatedEvent, opts ReplayOptions) (Report, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	days, order, err := bucketByDay(events, loc)
	if err != nil {
		return Report{}, err
	}

	start, err := core.ResolveLevel(0, cfg)
	if err != nil {
		return Report{}, err
	}
	r := &replay{ctx: ctx, opts: opts}
	report := Report{
		Ledger: make([]LedgerEntry, 0, len(events)),
		Daily:  make(map[string]DaySummary, len(order)),
	}
	prev := core.Progress{Level: start}
	var (
		streak  int
		lastDay time.Time
	)

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		day := days[key]
		if !lastDay.IsZero() && lastDay.AddDate(0, 0, 1).Equal(day.date) {
			streak++
		} else {
			streak = 1
		}
		lastDay = day.date
		mult := core.StreakMultiplier(streak, cfg)

		summary := DaySummary{Streak: streak, Events: len(day.events)}
		for _, pe := range day.events {
			ev := pe.Event
			assignees := max(1, pe.Assignees)
			if !ev.IsMicro() && assignees > 1 && ev.StoryPoints != nil {
				ev = ev.WithStoryPoints(*ev.StoryPoints / float64(assignees))
			}

			xp := core.ValueEvent(ev, streak, summary.MicroXP, cfg)
			if ev.IsMicro() {
				summary.MicroXP += xp
			}
			summary.XP += xp
			total, err := core.AddSafe(prev.Total, xp)
			if err != nil {
				return Report{}, fmt.Errorf("event %d on %s: %w", pe.index, key, err)
			}
			level, err := core.ResolveLevel(total, cfg)
			if err != nil {
				return Report{}, fmt.Errorf("event %d on %s: %w", pe.index, key, err)
			}

			entry := LedgerEntry{
				ID:         pe.ID,
				Date:       key,
				Ref:        pe.Ref,
				Kind:       ev.Kind,
				Assignees:  pe.Assignees,
				Streak:     streak,
				Multiplier: mult,
				XP:         xp,
				Total:      total,
			}
			if entry.ID == "" {
				entry.ID = uuid.NewSHA1(ledgerNamespace, []byte(fmt.Sprintf("%s/%d/%s", key, pe.index, ev.Kind))).String()
			}
			if ev.StoryPoints != nil && !ev.IsMicro() {
				entry.StoryPoints = *ev.StoryPoints
			}
			report.Ledger = append(report.Ledger, entry)

			after := core.Progress{Date: key, Total: total, Level: level, Streak: streak, MicroXP: summary.MicroXP}
			report.Notices = append(report.Notices, r.emit(prev, after, core.NewXPAwarded(pe.at, key, ev.Kind, xp, total))...)
			prev = after
		}
		report.Daily[key] = summary
		log.Debug("replayed day", "date", key, "xp", summary.XP, "streak", streak, "events", summary.Events)
	}

	report.Totals = Totals{TotalXP: prev.Total, LevelState: prev.Level}
	return report, nil
}

type replay struct {
	ctx  context.Context
	opts ReplayOptions
}

// emit publishes the award and every notice the rules derive from it, and
// returns the derived ones.
func (r *replay) emit(before, after core.Progress, trigger core.Notice) []core.Notice {
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(r.ctx, trigger)
	}
	if r.opts.Rules == nil {
		return nil
	}
	derived := r.opts.Rules.Evaluate(r.ctx, before, after, trigger)
	if r.opts.Bus != nil {
		for _, d := range derived {
			r.opts.Bus.Publish(r.ctx, d)
		}
	}
	return derived
}

// bucketByDay groups events by calendar day in loc, keeping input order within
// a day, and returns the day keys in ascending order.
func bucketByDay(events []DatedEvent, loc *time.Location) (map[string]*activeDay, []string, error) {
	days := make(map[string]*activeDay)
	for i, ev := range events {
		if !ev.Known() {
			return nil, nil, fmt.Errorf("%w: event %d has unknown kind %q", ErrInvalidEvent, i, ev.Kind)
		}
		var (
			date time.Time
			at   = ev.At
		)
		switch {
		case ev.Date != "":
			d, err := time.ParseInLocation(dayLayout, ev.Date, loc)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: event %d date %q: %v", ErrInvalidEvent, i, ev.Date, err)
			}
			date = d
			if at.IsZero() {
				at = d
			}
		case !ev.At.IsZero():
			local := ev.At.In(loc)
			date = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		default:
			return nil, nil, fmt.Errorf("%w: event %d has neither at nor date", ErrInvalidEvent, i)
		}

		key := date.Format(dayLayout)
		d := days[key]
		if d == nil {
			d = &activeDay{date: date}
			days[key] = d
		}
		d.events = append(d.events, placedEvent{DatedEvent: ev, index: i, at: at})
	}

	order := make([]string, 0, len(days))
	for k := range days {
		order = append(order, k)
	}
	sort.Strings(order)
	return days, order, nil
}
