package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loadboard/internal/logging"
)

// Engine runs a Reconciler on its own goroutine. Callers submit ops, feed
// broadcast events and read published Views from any goroutine.
type Engine struct {
	remote Remote
	feed   Feed
	opts   Options
	logger *slog.Logger

	tasks   chan func()
	changes chan struct{}
	view    atomic.Pointer[View]

	// current is only touched on the loop goroutine once Start returns.
	current *Reconciler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	workers sync.WaitGroup
}

// NewEngine builds an engine. feed may be nil when events are delivered
// through HandleEvent by the caller.
func NewEngine(remote Remote, feed Feed, opts Options) *Engine {
	e := &Engine{
		remote:  remote,
		feed:    feed,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "engine"),
		tasks:   make(chan func(), 64),
		changes: make(chan struct{}, 1),
	}
	empty := NewStore().View()
	e.view.Store(&empty)
	return e
}

// Start launches the event loop, subscribes to the feed and triggers the
// initial fetch.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("reconcile engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	rec := NewReconciler(e.remote, &loopExecutor{ctx: runCtx, engine: e}, e.opts)
	e.current = rec
	e.wg.Add(1)
	go e.loop(runCtx, rec)
	return nil
}

// Stop ends the loop, resolves outstanding tickets with ErrEngineStopped and
// waits for in-flight remote calls to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.workers.Wait()
}

func (e *Engine) loop(ctx context.Context, rec *Reconciler) {
	defer e.wg.Done()
	defer close(e.done)

	var unsubscribe func()
	if e.feed != nil {
		unsubscribe = e.feed.Subscribe(Topic, e.HandleEvent, e.RequestResync)
	}
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	rec.Start()
	e.afterTurn(rec, timer)
	for {
		select {
		case <-ctx.Done():
			if unsubscribe != nil {
				unsubscribe()
			}
			rec.Close()
			e.logger.Debug("reconcile engine stopped")
			return
		case fn := <-e.tasks:
			fn()
		case <-timer.C:
			rec.RunDue()
		}
		e.afterTurn(rec, timer)
	}
}

// afterTurn publishes the view when the store changed and re-arms the timer
// for the scheduler's next deadline.
func (e *Engine) afterTurn(rec *Reconciler, timer *time.Timer) {
	if current := e.view.Load(); current == nil || current.Version != rec.store.Version() {
		v := rec.View()
		e.view.Store(&v)
		select {
		case e.changes <- struct{}{}:
		default:
		}
	}
	if next, ok := rec.NextDeadline(); ok {
		timer.Reset(max(time.Until(next), 0))
	} else {
		timer.Reset(time.Hour)
	}
}

// post hands fn to the loop and returns the loop's done channel. It reports
// false when the engine is not running or ctx ended first.
func (e *Engine) post(ctx context.Context, fn func()) (<-chan struct{}, bool) {
	e.mu.Lock()
	done := e.done
	running := e.running
	e.mu.Unlock()
	if !running || done == nil {
		return nil, false
	}
	select {
	case <-done:
		return done, false
	default:
	}
	select {
	case e.tasks <- fn:
		return done, true
	case <-done:
		return done, false
	case <-ctx.Done():
		return done, false
	}
}

// Submit applies op on the loop and returns its ticket.
func (e *Engine) Submit(ctx context.Context, op Op) (*Ticket, error) {
	type reply struct {
		ticket *Ticket
		err    error
	}
	ch := make(chan reply, 1)
	done, ok := e.post(ctx, func() {
		t, err := e.current.Submit(op)
		ch <- reply{t, err}
	})
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrEngineStopped
	}
	select {
	case r := <-ch:
		return r.ticket, r.err
	case <-done:
		// The loop may have run fn just before exiting.
		select {
		case r := <-ch:
			return r.ticket, r.err
		default:
			return nil, ErrEngineStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits op and waits for the server's answer.
func (e *Engine) Do(ctx context.Context, op Op) (Outcome, error) {
	ticket, err := e.Submit(ctx, op)
	if err != nil {
		return Outcome{Op: op, Err: err}, err
	}
	return ticket.Wait(ctx)
}

// HandleEvent delivers a broadcast event to the loop.
func (e *Engine) HandleEvent(ev Event) {
	e.post(context.Background(), func() { e.current.HandleEvent(ev) })
}

// RequestResync schedules a debounced resync, e.g. after a reconnect.
func (e *Engine) RequestResync() {
	e.post(context.Background(), func() { e.current.RequestResync("requested") })
}

// View returns the most recently published snapshot.
func (e *Engine) View() View {
	return *e.view.Load()
}

// Counts returns the queue length and unassigned count from the current view.
func (e *Engine) Counts() Counts {
	return e.View().Counts()
}

// Changes is signalled after every turn that changed the store. Signals
// coalesce; read View after receiving one.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

// loopExecutor runs remote work on worker goroutines and posts the
// continuation back onto the engine loop.
type loopExecutor struct {
	ctx    context.Context
	engine *Engine
}

func (x *loopExecutor) Go(work func(ctx context.Context) func()) {
	x.engine.workers.Add(1)
	go func() {
		defer x.engine.workers.Done()
		resume := work(x.ctx)
		x.engine.post(context.Background(), resume)
	}()
}
