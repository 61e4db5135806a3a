// Package autosave decides when a workflow graph is persisted.
//
// The Controller is a three-state machine (Clean, Dirty, Saving) owning a
// single debounce timer. Every change while Clean or Dirty re-arms the
// timer; changes while Saving are remembered and re-arm it once the save
// finishes. At most one save runs at a time.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meikuraledutech/workflow"
)

type (
	// State is the persistence state of the graph.
	State uint8

	// Origin tells the controller why the layout was replaced.
	Origin uint8

	// SaveFunc persists the current graph.
	SaveFunc func(ctx context.Context) error

	// Timer is a pending callback that can be cancelled.
	Timer interface {
		Stop() bool
	}

	// AfterFunc schedules fn to run once after d.
	AfterFunc func(d time.Duration, fn func()) Timer

	// Clock provides the current time.
	Clock func() time.Time

	// Result describes a finished save.
	Result struct {
		Auto     bool
		Err      error
		Duration time.Duration
	}

	// Config holds the controller timings. Zero fields take the defaults; a
	// negative SuppressWindow disables the window.
	Config struct {
		Delay          time.Duration
		SuppressWindow time.Duration
		SaveTimeout    time.Duration
	}

	// Option configures a Controller.
	Option func(*Controller)

	// Controller runs the Clean/Dirty/Saving state machine.
	Controller struct {
		mu         sync.Mutex
		cfg        Config
		save       SaveFunc
		authorized func() bool
		now        Clock
		afterFunc  AfterFunc
		onResult   func(Result)
		logger     *zap.Logger

		state         State
		pending       bool
		skipNext      bool
		suppressUntil time.Time
		timer         Timer
		gen           uint64
		closed        bool
		inflight      sync.WaitGroup
	}
)

const (
	Clean State = iota
	Dirty
	Saving
)

const (
	// OriginEdit is a replacement caused by a user operation.
	OriginEdit Origin = iota

	// OriginSync is a replacement that reflects stored state, such as the
	// seed of a loaded workflow or a store echo of the graph just saved.
	OriginSync
)

const (
	DefaultDelay          = 1500 * time.Millisecond
	DefaultSuppressWindow = time.Second
	DefaultSaveTimeout    = 30 * time.Second
)

// DefaultConfig returns the editor's autosave timings.
func DefaultConfig() Config {
	return Config{
		Delay:          DefaultDelay,
		SuppressWindow: DefaultSuppressWindow,
		SaveTimeout:    DefaultSaveTimeout,
	}
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	}
	return "unknown"
}

// WithClock sets the time source used for the suppression window.
func WithClock(now Clock) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithAfterFunc sets the timer constructor.
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) {
		c.afterFunc = fn
	}
}

// WithLogger sets the controller's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithResultHandler registers a callback invoked after every save, with no
// controller lock held.
func WithResultHandler(fn func(Result)) Option {
	return func(c *Controller) {
		c.onResult = fn
	}
}

// SystemAfterFunc schedules fn on the runtime timer.
func SystemAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// New creates a Controller. authorized is consulted before every save; when
// it reports false, saves are skipped and the state is left untouched.
func New(
	cfg Config, save SaveFunc, authorized func() bool, opts ...Option,
) *Controller {
	def := DefaultConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	switch {
	case cfg.SuppressWindow == 0:
		cfg.SuppressWindow = def.SuppressWindow
	case cfg.SuppressWindow < 0:
		cfg.SuppressWindow = 0
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if authorized == nil {
		authorized = func() bool { return false }
	}
	c := &Controller{
		cfg:        cfg,
		save:       save,
		authorized: authorized,
		now:        time.Now,
		afterFunc:  SystemAfterFunc,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "autosave"))
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasUnsavedChanges reports whether the graph differs from the last
// successful save.
func (c *Controller) HasUnsavedChanges() bool {
	return c.State() != Clean
}

// IsSaving reports whether a save is in flight.
func (c *Controller) IsSaving() bool {
	return c.State() == Saving
}

// Loaded resets the controller after the graph was seeded from storage.
// The next layout replacement is the load's own and is not a change.
func (c *Controller) Loaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Saving {
		c.state = Clean
	}
	c.pending = false
	c.skipNext = true
	c.stopTimer()
}

// Replaced records a layout replacement.
func (c *Controller) Replaced(origin Origin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.skipNext {
		c.skipNext = false
		return
	}
	if origin == OriginSync && c.now().Before(c.suppressUntil) {
		return
	}
	if c.state == Saving {
		c.pending = true
		return
	}
	c.state = Dirty
	c.arm()
}

// Save persists the graph now. It is a no-op returning ErrSaveNotAllowed
// when the caller may not persist, and returns ErrSaveInProgress instead of
// starting a second concurrent save.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return workflow.ErrSessionClosed
	}
	if !c.authorized() {
		c.mu.Unlock()
		return workflow.ErrSaveNotAllowed
	}
	if c.state == Saving {
		c.mu.Unlock()
		return workflow.ErrSaveInProgress
	}
	c.stopTimer()
	c.state = Saving
	c.inflight.Add(1)
	c.mu.Unlock()

	return c.run(ctx, false)
}

// Close cancels the pending debounce timer and waits for a save already in
// flight to finish. No new saves start afterwards. Close must not be called
// from the result handler.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimer()
	c.mu.Unlock()
	c.inflight.Wait()
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.state != Dirty {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if !c.authorized() {
		c.mu.Unlock()
		c.logger.Debug("Autosave skipped, not authorized")
		return
	}
	c.state = Saving
	c.inflight.Add(1)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
	defer cancel()
	_ = c.run(ctx, true)
}

// run performs a save that the caller moved into Saving. Callers add to
// c.inflight under c.mu.
func (c *Controller) run(ctx context.Context, auto bool) error {
	defer c.inflight.Done()
	start := c.now()
	err := c.save(ctx)
	finished := c.now()

	c.mu.Lock()
	switch {
	case err != nil:
		c.state = Dirty
		c.pending = false
		c.arm()
	case c.pending:
		c.state = Dirty
		c.pending = false
		c.suppressUntil = finished.Add(c.cfg.SuppressWindow)
		c.arm()
	default:
		c.state = Clean
		c.suppressUntil = finished.Add(c.cfg.SuppressWindow)
	}
	state := c.state
	c.mu.Unlock()

	res := Result{Auto: auto, Err: err, Duration: finished.Sub(start)}
	if err != nil {
		c.logger.Warn("Save failed",
			zap.Bool("auto", auto), zap.Error(err))
	} else {
		c.logger.Debug("Save completed",
			zap.Bool("auto", auto),
			zap.Duration("duration", res.Duration),
			zap.Stringer("state", state))
	}
	if c.onResult != nil {
		c.onResult(res)
	}
	return err
}

// arm (re)starts the debounce timer. Callers hold c.mu.
func (c *Controller) arm() {
	c.stopTimer()
	if c.closed {
		return
	}
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.cfg.Delay, func() { c.fire(gen) })
}

// stopTimer cancels the pending timer. Callers hold c.mu.
func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}
