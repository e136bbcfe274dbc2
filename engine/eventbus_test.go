package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trackxp/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.NoticeXPAwarded, func(ctx context.Context, n core.Notice) { count++ })
	bus.Publish(context.Background(), core.NewXPAwarded(time.Now(), "d", core.KindDocs, 1, 1))
	bus.Publish(context.Background(), core.NewLevelUp(time.Now(), "d", 2, 100))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.NoticeLevelUp, func(ctx context.Context, n core.Notice) { count++ })
	unsub()
	bus.Publish(context.Background(), core.NewLevelUp(time.Now(), "d", 2, 100))
	if count != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.NoticeXPAwarded, func(ctx context.Context, n core.Notice) { close(ch) })
	bus.Publish(context.Background(), core.NewXPAwarded(time.Now(), "d", core.KindDocs, 1, 1))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusCloseDrains(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var n atomic.Int64
	bus.Subscribe(core.NoticeXPAwarded, func(ctx context.Context, _ core.Notice) { n.Add(1) })
	for i := 0; i < 100; i++ {
		bus.Publish(context.Background(), core.NewXPAwarded(time.Now(), "d", core.KindDocs, 1, 1))
	}
	bus.Close()
	bus.Close()
	if got := n.Load(); got != 100 {
		t.Fatalf("delivered %d of 100 notices", got)
	}
}

func TestEventBusLogsDroppedNotices(t *testing.T) {
	var buf bytes.Buffer
	bus := NewEventBusWithLogger(DispatchAsync, slog.New(slog.NewTextHandler(&buf, nil)))
	release := make(chan struct{})
	var delivered atomic.Int64
	bus.Subscribe(core.NoticeXPAwarded, func(ctx context.Context, _ core.Notice) {
		<-release
		delivered.Add(1)
	})

	// every worker blocks in the handler, so at most
	// asyncWorkers+asyncQueueSize notices are accepted
	const published = asyncWorkers + asyncQueueSize + 10
	for i := 0; i < published; i++ {
		bus.Publish(context.Background(), core.NewXPAwarded(time.Now(), "2024-03-01", core.KindDocs, 1, 1))
	}
	dropped := bus.Dropped()
	if dropped < 10 {
		t.Fatalf("dropped %d notices, want at least 10", dropped)
	}
	if got := strings.Count(buf.String(), "notice dropped"); uint64(got) != dropped {
		t.Fatalf("logged %d drops, counted %d", got, dropped)
	}
	if !strings.Contains(buf.String(), "type=xp_awarded") {
		t.Fatalf("drop log lacks notice type: %s", buf.String())
	}

	close(release)
	bus.Close()
	if got := uint64(delivered.Load()) + dropped; got != published {
		t.Fatalf("delivered+dropped = %d, want %d", got, published)
	}
}
