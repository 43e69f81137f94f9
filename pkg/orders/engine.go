package orders

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyunjk/orderflow/pkg/conn"
	"github.com/hyunjk/orderflow/pkg/ledger"
	"github.com/hyunjk/orderflow/pkg/util"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultSettleDelay  = time.Second
)

type EngineConfig struct {
	Session *conn.Session
	Store   *Store
	// PollInterval paces the periodic full refresh (default 30s).
	PollInterval time.Duration
	// SettleDelay is waited after a push event before refreshing (default 1s).
	SettleDelay time.Duration
	Clock       util.Clock
	Log         *zap.SugaredLogger
}

// Engine reconciles the store against the ledger. One worker goroutine owns
// all store writes; the timer, the push handler, and explicit kicks are
// just trigger producers. Triggers arriving while a refresh is in flight
// collapse into at most one follow-up refresh (the kick channel has
// capacity one), so ledger read load is bounded to a single outstanding
// batch no matter the trigger fan-in.
type Engine struct {
	log      *zap.SugaredLogger
	session  *conn.Session
	store    *Store
	clock    util.Clock
	interval time.Duration
	settle   time.Duration

	kick      chan struct{}
	events    chan ledger.Event
	onPublish func()

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		log:      cfg.Log,
		session:  cfg.Session,
		store:    cfg.Store,
		clock:    cfg.Clock,
		interval: cfg.PollInterval,
		settle:   cfg.SettleDelay,
		kick:     make(chan struct{}, 1),
		events:   make(chan ledger.Event, 16),
		quit:     make(chan struct{}),
	}
	if e.clock == nil {
		e.clock = util.RealClock{}
	}
	if e.interval <= 0 {
		e.interval = defaultPollInterval
	}
	if e.settle < 0 {
		e.settle = defaultSettleDelay
	}
	return e
}

// SetOnPublish registers a hook invoked after each published refresh.
// Must be called before Start.
func (e *Engine) SetOnPublish(fn func()) { e.onPublish = fn }

// Start launches the worker and primes an immediate first refresh.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
	e.Kick()
}

// Kick requests a refresh. If one is already in flight, at most one more is
// recorded; further kicks are dropped.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Stop cancels the timer and subscriptions and waits for the worker to
// exit. Idempotent; also triggered by session teardown.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
	e.wg.Wait()
}

func (e *Engine) run() {
	defer e.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-e.quit:
		case <-e.session.Done():
		}
		cancel()
	}()

	// Push subscriptions are per session; a reconnected session gets a
	// fresh engine and therefore fresh handlers.
	var subErrCh <-chan error
	sub, err := e.session.Ledger.WatchEvents(ctx, e.events)
	if err != nil {
		e.log.Warnw("event_watch_unavailable", "err", err)
	} else {
		defer sub.Unsubscribe()
		subErrCh = sub.Err()
	}

	timer := e.clock.After(e.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer:
			e.refreshAll(ctx)
			timer = e.clock.After(e.interval)
		case <-e.kick:
			e.refreshAll(ctx)
		case ev := <-e.events:
			e.log.Debugw("ledger_event", "kind", ev.Kind.String(), "order_id", ev.OrderID)
			// Wait out the settle delay so the refresh does not read a
			// state the node has not finalized yet.
			select {
			case <-e.clock.After(e.settle):
				e.Kick()
			case <-ctx.Done():
				return
			}
		case err := <-subErrCh:
			if err != nil {
				e.log.Warnw("event_watch_lost", "err", err)
			}
			// Polling still converges the cache without push events.
			subErrCh = nil
		}
	}
}

// refreshAll reads the full order set and publishes it as one snapshot.
// A failed per-order read keeps the previous snapshot for that id and does
// not abort the batch. The result is discarded if the session died while
// the batch was in flight.
func (e *Engine) refreshAll(ctx context.Context) {
	start := e.clock.Now()

	count, err := e.session.Ledger.OrderCount(ctx)
	if err != nil {
		e.log.Warnw("refresh_count_failed", "err", err)
		return
	}

	next := make(map[uint64]ledger.Order, count)
	stale := 0
	for id := uint64(1); id <= count; id++ {
		ord, err := e.session.Ledger.GetOrder(ctx, id)
		if err != nil {
			if prev, ok := e.store.Get(id); ok {
				next[id] = prev
				stale++
			}
			e.log.Warnw("refresh_order_failed", "order_id", id, "err", err)
			continue
		}
		next[id] = ord
	}

	if !e.session.Active() {
		e.log.Debugw("refresh_discarded", "reason", "session_closed")
		return
	}
	select {
	case <-e.quit:
		return
	default:
	}

	e.store.Replace(next, count)
	if e.onPublish != nil {
		e.onPublish()
	}
	e.log.Debugw("refresh_done",
		"count", count,
		"stale", stale,
		"took_ms", e.clock.Now().Sub(start).Milliseconds())
}
