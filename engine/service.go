package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"trackxp/core"
)

// Service binds a shared XP configuration to the event bus and rules so
// callers do not have to pass them on every call. It holds no XP state.
type Service struct {
	cfg   core.Config
	loc   *time.Location
	bus   *EventBus
	rules RuleEngine
	log   *slog.Logger
}

// NewService validates cfg and assembles a Service. A nil location means UTC
// and a nil logger means slog.Default().
func NewService(cfg core.Config, bus *EventBus, rules RuleEngine, loc *time.Location, log *slog.Logger) (*Service, error) {
	if bus == nil || rules == nil {
		panic("NewService requires non-nil bus and rules")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, loc: loc, bus: bus, rules: rules, log: log}, nil
}

// DefaultRuleEngine emits level ups, daily micro cap hits and streak resets.
func DefaultRuleEngine(cfg core.Config) RuleEngine {
	return &simpleRuleEngine{rules: []core.Rule{
		core.LevelUpRule{},
		core.MicroCapRule{Cap: int64(math.Floor(cfg.MicroCapPerDay))},
		core.StreakResetRule{},
	}}
}

// Config returns the configuration every call is evaluated against.
func (s *Service) Config() core.Config { return s.cfg }

// Location is the timezone used to cut replays into days.
func (s *Service) Location() *time.Location { return s.loc }

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.NoticeType, handler func(context.Context, core.Notice)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, n core.Notice) {
	s.bus.Publish(ctx, n)
}

func (s *Service) ValueEvent(ev core.Event, streakDays int, microXPAwardedToday int64) int64 {
	return core.ValueEvent(ev, streakDays, microXPAwardedToday, s.cfg)
}

func (s *Service) ResolveLevel(totalXP int64) (core.LevelState, error) {
	return core.ResolveLevel(totalXP, s.cfg)
}

func (s *Service) Curve(from, to int64) ([]core.LevelCost, error) {
	return core.LevelCurve(from, to, s.cfg)
}

// Replay runs a ledger replay in the service's location.
func (s *Service) Replay(ctx context.Context, events []DatedEvent) (Report, error) {
	return s.ReplayIn(ctx, events, s.loc)
}

// ReplayIn runs a ledger replay cutting days in loc.
func (s *Service) ReplayIn(ctx context.Context, events []DatedEvent, loc *time.Location) (Report, error) {
	report, err := Replay(ctx, events, ReplayOptions{
		Config:   s.cfg,
		Location: loc,
		Bus:      s.bus,
		Rules:    s.rules,
		Logger:   s.log,
	})
	if err != nil {
		return Report{}, err
	}
	s.log.Info("ledger replayed",
		"events", len(report.Ledger),
		"days", len(report.Daily),
		"total_xp", report.Totals.TotalXP,
		"level", report.Totals.Level)
	return report, nil
}

func (s *Service) Close() { s.bus.Close() }

type simpleRuleEngine struct{ rules []core.Rule }

func (s *simpleRuleEngine) Evaluate(ctx context.Context, before, after core.Progress, trigger core.Notice) []core.Notice {
	var out []core.Notice
	for _, r := range s.rules {
		out = append(out, r.Evaluate(ctx, before, after, trigger)...)
	}
	return out
}
