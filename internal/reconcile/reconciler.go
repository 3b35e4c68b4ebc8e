package reconcile

import (
	"log/slog"
	"time"

	"loadboard/internal/config"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
)

// Topic is the broadcast topic carrying order events.
const Topic = "orders"

// Options tunes the reconciler's windows.
type Options struct {
	// Grace delays clearing suppression after a confirmed mutation.
	Grace time.Duration
	// PendingTTL bounds how long any pending marker lives.
	PendingTTL time.Duration
	// Debounce collapses unspecified events and bursts into one resync.
	Debounce time.Duration
	// ResyncInterval is the unconditional refetch period.
	ResyncInterval time.Duration
	// BurstThreshold is the number of foreign events inside one debounce
	// window above which a resync is scheduled.
	BurstThreshold int
	// TrackedStates are fetched in addition to the queued and unqueued views.
	TrackedStates []orders.WorkflowState

	Now       func() time.Time
	Logger    *slog.Logger
	OnFailure func(*MutationError)
}

// OptionsFromConfig converts the [sync] config section.
func OptionsFromConfig(cfg config.Sync) Options {
	states := make([]orders.WorkflowState, 0, len(cfg.TrackedStates))
	for _, raw := range cfg.TrackedStates {
		if state, ok := orders.ParseState(raw); ok {
			states = append(states, state)
		}
	}
	return Options{
		Grace:          cfg.Grace(),
		PendingTTL:     cfg.PendingTTL(),
		Debounce:       cfg.Debounce(),
		ResyncInterval: cfg.ResyncInterval(),
		BurstThreshold: cfg.BurstThreshold,
		TrackedStates:  states,
	}
}

func (o Options) withDefaults() Options {
	def := OptionsFromConfig(config.Default().Sync)
	if o.Grace <= 0 {
		o.Grace = def.Grace
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = def.PendingTTL
	}
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.ResyncInterval <= 0 {
		o.ResyncInterval = def.ResyncInterval
	}
	if o.BurstThreshold <= 0 {
		o.BurstThreshold = def.BurstThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Reconciler is the single-threaded core. Every method must be called from
// one goroutine; blocking work is handed to the Executor and its results
// come back through the same goroutine.
type Reconciler struct {
	opts   Options
	remote Remote
	exec   Executor
	logger *slog.Logger

	store *Store
	sup   *Suppressor
	sched *Scheduler
	gate  *gate

	inflight map[*pendingOp]struct{}
	closed   bool

	resyncTick     Handle
	resyncDebounce Handle
	resyncRunning  bool
	resyncAgain    bool
	resyncCount    int
	burstStart     time.Time
	burstCount     int
}

// NewReconciler builds a reconciler over an empty store.
func NewReconciler(remote Remote, exec Executor, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		opts:     opts,
		remote:   remote,
		exec:     exec,
		logger:   logging.NewComponentLogger(opts.Logger, "reconcile"),
		store:    NewStore(),
		sup:      NewSuppressor(opts.Now),
		sched:    NewScheduler(opts.Now),
		gate:     newGate(),
		inflight: make(map[*pendingOp]struct{}),
	}
}

// Start issues the initial fetch and arms the periodic resync.
func (r *Reconciler) Start() {
	r.resync("startup")
	r.armResyncTick()
}

// Close resolves every outstanding ticket with ErrEngineStopped and stops
// scheduling. Results arriving afterwards are ignored.
func (r *Reconciler) Close() {
	if r.closed {
		return
	}
	r.closed = true
	for p := range r.inflight {
		p.ticket.resolve(nil, ErrEngineStopped)
	}
	for _, p := range r.gate.waiting {
		p.ticket.resolve(nil, ErrEngineStopped)
	}
	r.inflight = nil
	r.gate.waiting = nil
	r.sched.Cancel(r.resyncTick)
	r.sched.Cancel(r.resyncDebounce)
}

// RunDue fires scheduled tasks that are due at the reconciler's clock.
func (r *Reconciler) RunDue() int {
	return r.sched.RunDue(r.opts.Now())
}

// NextDeadline returns when RunDue next has work.
func (r *Reconciler) NextDeadline() (time.Time, bool) {
	return r.sched.NextDeadline()
}

// Store exposes the snapshot store for reads on the reconciler goroutine.
func (r *Reconciler) Store() *Store { return r.store }

// View returns an immutable copy of the current store.
func (r *Reconciler) View() View { return r.store.View() }

// IsPending reports whether id is owned by an in-flight local mutation.
func (r *Reconciler) IsPending(id orders.ID) bool { return r.sup.IsPending(id) }

// ResyncCount returns the number of resyncs applied so far.
func (r *Reconciler) ResyncCount() int { return r.resyncCount }
