package gamify

import (
	"context"
	"log/slog"
	"time"

	"trackxp/core"
	"trackxp/engine"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	xp     core.Config
	mode   engine.DispatchMode
	rules  engine.RuleEngine
	loc    *time.Location
	logger *slog.Logger
}

// WithConfig sets the XP configuration shared by every call.
func WithConfig(c core.Config) Option { return func(cfg *config) { cfg.xp = c } }

// WithRuleEngine sets the rule engine.
func WithRuleEngine(r engine.RuleEngine) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async notice dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithLocation sets the timezone replays cut days in.
func WithLocation(loc *time.Location) Option { return func(c *config) { c.loc = loc } }

// WithLogger sets the logger; level ups and cap hits are logged through it.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured Service. If not provided, defaults are used:
//   - config: core.DefaultConfig
//   - rules: engine.DefaultRuleEngine for that config
//   - dispatch: sync
//   - location: UTC
//   - logger: slog.Default
func New(opts ...Option) (*engine.Service, error) {
	cfg := &config{xp: core.DefaultConfig(), mode: engine.DispatchSync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.rules == nil {
		cfg.rules = engine.DefaultRuleEngine(cfg.xp)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	bus := engine.NewEventBusWithLogger(cfg.mode, cfg.logger)
	svc, err := engine.NewService(cfg.xp, bus, cfg.rules, cfg.loc, cfg.logger)
	if err != nil {
		bus.Close()
		return nil, err
	}

	log := cfg.logger
	bus.Subscribe(core.NoticeLevelUp, func(ctx context.Context, n core.Notice) {
		log.InfoContext(ctx, "level up", "date", n.Date, "level", n.Level, "total_xp", n.Total)
	})
	bus.Subscribe(core.NoticeMicroCapReached, func(ctx context.Context, n core.Notice) {
		log.DebugContext(ctx, "micro xp cap reached", "date", n.Date, "micro_xp", n.XP)
	})
	bus.Subscribe(core.NoticeStreakReset, func(ctx context.Context, n core.Notice) {
		log.DebugContext(ctx, "streak reset", "date", n.Date, "previous_streak", n.Streak)
	})
	return svc, nil
}
