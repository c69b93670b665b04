package history

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
)

const (
	defaultBuffer     = 64
	defaultPruneEvery = time.Hour
	drainTimeout      = 2 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecorderOptions configures NewRecorder.
type RecorderOptions struct {
	// Retention prunes events older than this. Zero keeps everything.
	Retention time.Duration

	// PruneEvery is the prune period. Default: 1h
	PruneEvery time.Duration

	// Buffer is the queue length between notifications and the writer. Default: 64
	Buffer int

	// Now defaults to time.Now.
	Now func() time.Time

	Logger Logger
}

// Recorder persists controller state pushes.
//
// It implements garage.Notifier. Pushes are queued and written by Run so
// the poll loop never waits on SQLite; when the queue is full the event
// is dropped with a warning.
type Recorder struct {
	store  *Store
	events chan Event
	opts   RecorderOptions
}

var _ garage.Notifier = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = defaultPruneEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Recorder{
		store:  store,
		events: make(chan Event, opts.Buffer),
		opts:   opts,
	}
}

// Run writes queued events until ctx is cancelled, then drains what is left.
// Writes already dequeued are not interrupted by cancellation.
func (r *Recorder) Run(ctx context.Context) {
	dbCtx := context.WithoutCancel(ctx)

	var pruneC <-chan time.Time
	if r.opts.Retention > 0 {
		ticker := time.NewTicker(r.opts.PruneEvery)
		defer ticker.Stop()
		pruneC = ticker.C
		r.prune(dbCtx)
	}

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case e := <-r.events:
			r.write(dbCtx, e)
		case <-pruneC:
			r.prune(dbCtx)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.events:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Event) {
	if err := r.store.Record(ctx, e); err != nil {
		r.opts.Logger.Error("recording history event failed",
			"accessory", e.Accessory,
			"kind", e.Kind,
			"error", err,
		)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.store.Prune(ctx, r.opts.Now(), r.opts.Retention)
	if err != nil {
		r.opts.Logger.Error("pruning history failed", "error", err)
		return
	}
	if n > 0 {
		r.opts.Logger.Info("pruned history events", "deleted", n, "retention", r.opts.Retention)
	}
}

func (r *Recorder) enqueue(accessory, kind, value string) {
	e := Event{Accessory: accessory, Kind: kind, Value: value, OccurredAt: r.opts.Now()}
	select {
	case r.events <- e:
	default:
		r.opts.Logger.Warn("history queue full, dropping event", "accessory", accessory, "kind", kind)
	}
}

func (r *Recorder) DoorCurrentStateChanged(state garage.DoorState) {
	r.enqueue(AccessoryDoor, KindCurrent, state.String())
}

func (r *Recorder) DoorTargetStateChanged(state garage.DoorState) {
	r.enqueue(AccessoryDoor, KindTarget, state.String())
}

func (r *Recorder) ObstructionDetectedChanged(obstructed bool) {
	value := "false"
	if obstructed {
		value = "true"
	}
	r.enqueue(AccessoryDoor, KindObstruction, value)
}

func (r *Recorder) LightStateChanged(on bool) {
	r.enqueue(AccessoryLight, KindLight, garage.LightString(on))
}
