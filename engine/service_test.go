package engine

import (
	"context"
	"errors"
	"testing"

	"trackxp/core"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := core.DefaultConfig()
	svc, err := NewService(cfg, NewEventBus(DispatchSync), DefaultRuleEngine(cfg), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestServiceValueAndLevel(t *testing.T) {
	svc := newTestService(t)
	if got := svc.ValueEvent(core.PRMerged(4, true), 0, 0); got != 120 {
		t.Fatalf("merge award = %d, want 120", got)
	}
	st, err := svc.ResolveLevel(99)
	if err != nil || st != (core.LevelState{Level: 1, IntoLevelXP: 99, LevelNeed: 100}) {
		t.Fatalf("ResolveLevel(99) = %+v, %v", st, err)
	}
	rows, err := svc.Curve(1, 3)
	if err != nil || len(rows) != 3 {
		t.Fatalf("curve = %v, %v", rows, err)
	}
}

func TestServiceReplayEmitsLevelUp(t *testing.T) {
	svc := newTestService(t)
	levelUps := 0
	svc.Subscribe(core.NoticeLevelUp, func(ctx context.Context, n core.Notice) { levelUps++ })

	report, err := svc.Replay(context.Background(), []DatedEvent{
		{Date: "2024-01-01", Event: core.IssueClosed(40)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Totals.Level < 2 {
		t.Fatalf("expected a level above 1, got %+v", report.Totals)
	}
	if levelUps != 1 {
		t.Fatalf("expected one level up notice, got %d", levelUps)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.LevelA = 0
	_, err := NewService(cfg, NewEventBus(DispatchSync), DefaultRuleEngine(cfg), nil, nil)
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}
