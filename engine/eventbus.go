package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"trackxp/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

const (
	asyncQueueSize = 2048
	asyncWorkers   = 4
)

type subscription struct {
	id  int64
	typ core.NoticeType
	fn  func(context.Context, core.Notice)
}

// EventBus provides thread-safe pub/sub of notices with sync and async dispatch.
type EventBus struct {
	mode         DispatchMode
	mu           sync.RWMutex
	subs         map[core.NoticeType]map[int64]subscription
	nextID       int64
	asyncQueue   chan core.Notice
	asyncWorkers int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
	log          *slog.Logger
	dropped      atomic.Uint64
}

// NewEventBus returns a bus that reports dropped notices to slog.Default.
func NewEventBus(mode DispatchMode) *EventBus {
	return NewEventBusWithLogger(mode, nil)
}

// NewEventBusWithLogger returns a bus that reports dropped notices to log.
func NewEventBusWithLogger(mode DispatchMode, log *slog.Logger) *EventBus {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		mode:         mode,
		subs:         make(map[core.NoticeType]map[int64]subscription),
		asyncQueue:   make(chan core.Notice, asyncQueueSize),
		asyncWorkers: asyncWorkers,
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.asyncWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case n := <-e.asyncQueue:
					e.dispatchSync(context.Background(), n)
				case <-e.ctx.Done():
					e.drain()
					return
				}
			}
		}()
	}
}

func (e *EventBus) drain() {
	for {
		select {
		case n := <-e.asyncQueue:
			e.dispatchSync(context.Background(), n)
		default:
			return
		}
	}
}

// Close stops async workers after delivering queued notices.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
}

// Subscribe registers a handler for a notice type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.NoticeType, handler func(context.Context, core.Notice)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, typ: typ, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// Publish sends a notice to subscribers. Async buses drop notices when the
// queue is full and log a warning for each one.
func (e *EventBus) Publish(ctx context.Context, n core.Notice) {
	if e.mode == DispatchAsync {
		select {
		case e.asyncQueue <- n:
		default:
			total := e.dropped.Add(1)
			e.log.WarnContext(ctx, "notice dropped", "type", n.Type, "date", n.Date, "dropped_total", total)
		}
		return
	}
	e.dispatchSync(ctx, n)
}

// Dropped counts notices discarded because the async queue was full.
func (e *EventBus) Dropped() uint64 { return e.dropped.Load() }

func (e *EventBus) dispatchSync(ctx context.Context, n core.Notice) {
	e.mu.RLock()
	subs := e.subs[n.Type]
	// copy to avoid holding lock during callbacks
	handlers := make([]func(context.Context, core.Notice), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, n)
	}
}
