package pipe

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/xid"
)

// DefaultStopTimeout bounds how long Stop waits for the worker to exit.
const DefaultStopTimeout = 5 * time.Second

// TaskConfig configures the worker goroutine.
type TaskConfig struct {
	Name string
	// LockOSThread wires the worker goroutine to its own OS thread.
	LockOSThread bool
	// StopTimeout bounds Stop, DefaultStopTimeout if zero.
	StopTimeout time.Duration
}

// Plan is what a Task executes: open, then jobs until the last one is
// done, then close. Hooks are called on the worker goroutine.
type Plan struct {
	Open  func(ctx context.Context) error
	Jobs  []Job
	Close func() error
	// Abort unblocks operations parked in jobs when task is stopped.
	Abort func()
	// Report is called on every task state change.
	Report func(s State, err error)
}

// Task executes a Plan on a dedicated goroutine.
type Task struct {
	cfg TaskConfig
	uid string
	log Logger

	mu       sync.Mutex
	active   bool
	stopping bool
	pausing  bool
	paused   bool
	wake     chan struct{}
	cancel   context.CancelFunc
	abort    func()
	done     chan struct{}
}

// NewTask creates a new idle task.
func NewTask(cfg TaskConfig) *Task {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Task{
		cfg: cfg,
		uid: newUID(),
		log: defaultLogger,
	}
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// SetLogger replaces task logger.
func (t *Task) SetLogger(l Logger) {
	t.log = l
}

func (t *Task) String() string {
	if t.cfg.Name != "" {
		return fmt.Sprintf("task %s[%s]", t.cfg.Name, t.uid)
	}
	return fmt.Sprintf("task %s", t.uid)
}

// Active reports whether task is executing a plan.
func (t *Task) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Run starts plan execution. It returns ErrInvalidState if task is active.
func (t *Task) Run(p Plan) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return fmt.Errorf("%v: run: %w", t, ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.active = true
	t.stopping, t.pausing, t.paused = false, false, false
	t.wake = make(chan struct{})
	t.cancel = cancel
	t.abort = p.Abort
	t.done = make(chan struct{})
	go t.loop(ctx, p, t.done)
	return nil
}

// Pause requests worker to pause before its next job.
func (t *Task) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.stopping || t.pausing {
		return fmt.Errorf("%v: pause: %w", t, ErrInvalidState)
	}
	t.pausing = true
	return nil
}

// Resume wakes paused worker.
func (t *Task) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.stopping || !t.pausing {
		return fmt.Errorf("%v: resume: %w", t, ErrInvalidState)
	}
	t.pausing = false
	close(t.wake)
	t.wake = make(chan struct{})
	return nil
}

// Stop cancels the plan and waits for the worker to exit. Calling it from
// the Report hook blocks until StopTimeout expires.
func (t *Task) Stop() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return fmt.Errorf("%v: stop: %w", t, ErrInvalidState)
	}
	done := t.done
	if !t.stopping {
		t.stopping = true
		t.cancel()
		if t.abort != nil {
			t.abort()
		}
	}
	t.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(t.cfg.StopTimeout):
		return fmt.Errorf("%v: stop timeout %v: %w", t, t.cfg.StopTimeout, ErrFail)
	}
}

// Wait blocks until the worker of the last run exits.
func (t *Task) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Task) loop(ctx context.Context, p Plan, done chan struct{}) {
	defer close(done)
	if t.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	report := func(s State, err error) {
		t.log.Debug(fmt.Sprintf("%v is %v", t, s))
		if p.Report != nil {
			p.Report(s, err)
		}
	}

	report(StateOpening, nil)
	var err error
	if p.Open != nil {
		err = p.Open(ctx)
	}
	if err == nil {
		report(StateRunning, nil)
		err = t.schedule(ctx, p, report)
	}
	var errClose error
	if p.Close != nil {
		errClose = p.Close()
	}

	t.mu.Lock()
	stopped := t.stopping
	t.mu.Unlock()

	switch {
	case stopped:
		report(StateStopped, nil)
	case err != nil || errClose != nil:
		e := &ErrorRun{ErrExec: err, ErrClose: errClose}
		t.log.Debug(fmt.Sprintf("%v failed: %v", t, e))
		report(StateError, e)
	default:
		report(StateFinished, nil)
	}

	// Task stays active until the terminal state is delivered.
	t.mu.Lock()
	t.active = false
	t.cancel()
	t.mu.Unlock()
}

// schedule runs jobs in chain order. A job is called only after its
// upstream has produced. When a job needs more input, execution resumes
// at the nearest upstream job which still holds input, or at the head.
func (t *Task) schedule(ctx context.Context, p Plan, report func(State, error)) error {
	n := len(p.Jobs)
	if n == 0 {
		return nil
	}
	pending := make([]bool, n)
	start := 0
	for {
		next := -1
		for i := start; i < n; i++ {
			if err := t.checkpoint(ctx, report); err != nil {
				return err
			}
			res, err := p.Jobs[i].Process(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Jobs[i].Name(), err)
			}
			switch res {
			case Retry:
				i--
				continue
			case Continue:
				pending[i] = false
				next = deepest(pending[:i])
			case Truncate:
				pending[i] = true
			case Done:
				pending[i] = false
				if i == n-1 {
					return nil
				}
			default:
				pending[i] = false
			}
			if next >= 0 {
				break
			}
		}
		if next < 0 {
			next = deepest(pending)
		}
		start = next
	}
}

// deepest returns index of the last pending job or head if none.
func deepest(pending []bool) int {
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i] {
			return i
		}
	}
	return 0
}

// checkpoint blocks while task is paused. It returns an error when the
// task is stopped.
func (t *Task) checkpoint(ctx context.Context, report func(State, error)) error {
	t.mu.Lock()
	for t.pausing {
		if !t.paused {
			t.paused = true
			t.mu.Unlock()
			report(StatePaused, nil)
			t.mu.Lock()
			continue
		}
		wake := t.wake
		t.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
		t.mu.Lock()
	}
	resumed := t.paused
	t.paused = false
	t.mu.Unlock()
	if resumed {
		report(StateRunning, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
