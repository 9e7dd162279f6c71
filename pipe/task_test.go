package pipe_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/player/pipe"
)

// scripted job returns results in order and records every call.
type scripted struct {
	name    string
	results []pipe.Result
	calls   *[]string
	err     error
}

func (j *scripted) Name() string {
	return j.name
}

func (j *scripted) Process(context.Context) (pipe.Result, error) {
	*j.calls = append(*j.calls, j.name)
	if j.err != nil {
		return pipe.OK, j.err
	}
	if len(j.results) == 0 {
		return pipe.Done, nil
	}
	r := j.results[0]
	j.results = j.results[1:]
	return r, nil
}

type stateRecorder struct {
	states chan pipe.State
	errs   chan error
}

func newRecorder() *stateRecorder {
	return &stateRecorder{
		states: make(chan pipe.State, 16),
		errs:   make(chan error, 16),
	}
}

func (r *stateRecorder) report(s pipe.State, err error) {
	r.states <- s
	if err != nil {
		r.errs <- err
	}
}

// until reads states until terminal one and returns all of them.
func (r *stateRecorder) until(t *testing.T) []pipe.State {
	t.Helper()
	var states []pipe.State
	for {
		select {
		case s := <-r.states:
			states = append(states, s)
			if s.Terminal() {
				return states
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no terminal state, got %v", states)
			return nil
		}
	}
}

func TestSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name     string
		jobs     func(calls *[]string) []pipe.Job
		expected []string
	}{
		{
			name: "chain order",
			jobs: func(calls *[]string) []pipe.Job {
				return []pipe.Job{
					&scripted{name: "a", results: []pipe.Result{pipe.OK, pipe.Done}, calls: calls},
					&scripted{name: "b", results: []pipe.Result{pipe.OK, pipe.Done}, calls: calls},
				}
			},
			expected: []string{"a", "b", "a", "b"},
		},
		{
			name: "continue restarts at head",
			jobs: func(calls *[]string) []pipe.Job {
				return []pipe.Job{
					&scripted{name: "a", results: []pipe.Result{pipe.OK, pipe.Done}, calls: calls},
					&scripted{name: "b", results: []pipe.Result{pipe.Continue, pipe.OK}, calls: calls},
					&scripted{name: "c", results: []pipe.Result{pipe.Done}, calls: calls},
				}
			},
			expected: []string{"a", "b", "a", "b", "c"},
		},
		{
			name: "truncate resumes at pending job",
			jobs: func(calls *[]string) []pipe.Job {
				return []pipe.Job{
					&scripted{name: "a", results: []pipe.Result{pipe.Truncate, pipe.Done}, calls: calls},
					&scripted{name: "b", results: []pipe.Result{pipe.OK, pipe.Done}, calls: calls},
				}
			},
			expected: []string{"a", "b", "a", "b"},
		},
		{
			name: "continue resumes at nearest pending upstream",
			jobs: func(calls *[]string) []pipe.Job {
				return []pipe.Job{
					&scripted{name: "a", results: []pipe.Result{pipe.OK, pipe.Done}, calls: calls},
					&scripted{name: "b", results: []pipe.Result{pipe.Truncate, pipe.OK, pipe.Done}, calls: calls},
					&scripted{name: "c", results: []pipe.Result{pipe.Continue, pipe.OK, pipe.Done}, calls: calls},
				}
			},
			expected: []string{"a", "b", "c", "b", "c", "a", "b", "c"},
		},
		{
			name: "retry reruns same job",
			jobs: func(calls *[]string) []pipe.Job {
				return []pipe.Job{
					&scripted{name: "a", results: []pipe.Result{pipe.Retry, pipe.Retry, pipe.Done}, calls: calls},
				}
			},
			expected: []string{"a", "a", "a"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var calls []string
			rec := newRecorder()
			task := pipe.NewTask(pipe.TaskConfig{Name: test.name})
			err := task.Run(pipe.Plan{
				Jobs:   test.jobs(&calls),
				Report: rec.report,
			})
			require.NoError(t, err)
			states := rec.until(t)
			task.Wait()
			assert.Equal(t, []pipe.State{pipe.StateOpening, pipe.StateRunning, pipe.StateFinished}, states)
			assert.Equal(t, test.expected, calls)
		})
	}
}

func TestTaskErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	errOpen := errors.New("open failed")
	errJob := errors.New("job failed")
	errClose := errors.New("close failed")
	tests := []struct {
		name  string
		plan  func(calls *[]string) pipe.Plan
		cause error
	}{
		{
			name: "open",
			plan: func(calls *[]string) pipe.Plan {
				return pipe.Plan{
					Open: func(context.Context) error { return errOpen },
					Jobs: []pipe.Job{&scripted{name: "a", calls: calls}},
				}
			},
			cause: errOpen,
		},
		{
			name: "job",
			plan: func(calls *[]string) pipe.Plan {
				return pipe.Plan{
					Jobs: []pipe.Job{&scripted{name: "a", calls: calls, err: errJob}},
				}
			},
			cause: errJob,
		},
		{
			name: "close",
			plan: func(calls *[]string) pipe.Plan {
				return pipe.Plan{
					Jobs:  []pipe.Job{&scripted{name: "a", calls: calls}},
					Close: func() error { return errClose },
				}
			},
			cause: errClose,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var calls []string
			rec := newRecorder()
			plan := test.plan(&calls)
			plan.Report = rec.report
			task := pipe.NewTask(pipe.TaskConfig{})
			require.NoError(t, task.Run(plan))
			states := rec.until(t)
			task.Wait()
			assert.Equal(t, pipe.StateError, states[len(states)-1])
			err := <-rec.errs
			assert.ErrorIs(t, err, test.cause)
			var errRun *pipe.ErrorRun
			assert.True(t, errors.As(err, &errRun))
		})
	}
}

// blocking job waits until context is cancelled.
type blocking struct{}

func (blocking) Name() string {
	return "blocking"
}

func (blocking) Process(ctx context.Context) (pipe.Result, error) {
	<-ctx.Done()
	return pipe.OK, ctx.Err()
}

func TestTaskStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newRecorder()
	aborted := make(chan struct{})
	task := pipe.NewTask(pipe.TaskConfig{})
	require.NoError(t, task.Run(pipe.Plan{
		Jobs:   []pipe.Job{blocking{}},
		Abort:  func() { close(aborted) },
		Report: rec.report,
	}))
	assert.ErrorIs(t, task.Run(pipe.Plan{}), pipe.ErrInvalidState)
	assert.True(t, task.Active())

	require.NoError(t, task.Stop())
	<-aborted
	states := rec.until(t)
	assert.Equal(t, pipe.StateStopped, states[len(states)-1])
	assert.False(t, task.Active())
	assert.ErrorIs(t, task.Stop(), pipe.ErrInvalidState)
}

// ticking job counts its calls.
type ticking struct {
	calls *atomic.Int64
}

func (ticking) Name() string {
	return "ticking"
}

func (j ticking) Process(ctx context.Context) (pipe.Result, error) {
	j.calls.Add(1)
	select {
	case <-ctx.Done():
		return pipe.OK, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return pipe.OK, nil
}

func (r *stateRecorder) next(t *testing.T) pipe.State {
	t.Helper()
	select {
	case s := <-r.states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no state reported")
		return pipe.StateNone
	}
}

func TestTaskPause(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newRecorder()
	job := ticking{calls: &atomic.Int64{}}
	task := pipe.NewTask(pipe.TaskConfig{LockOSThread: true})
	require.NoError(t, task.Run(pipe.Plan{
		Jobs:   []pipe.Job{job},
		Report: rec.report,
	}))
	assert.Equal(t, pipe.StateOpening, rec.next(t))
	assert.Equal(t, pipe.StateRunning, rec.next(t))
	require.Eventually(t, func() bool { return job.calls.Load() > 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, task.Resume(), pipe.ErrInvalidState)
	require.NoError(t, task.Pause())
	assert.ErrorIs(t, task.Pause(), pipe.ErrInvalidState)
	assert.Equal(t, pipe.StatePaused, rec.next(t))

	paused := job.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, job.calls.Load(), "job called while paused")

	require.NoError(t, task.Resume())
	assert.Equal(t, pipe.StateRunning, rec.next(t))
	require.Eventually(t, func() bool { return job.calls.Load() > paused }, time.Second, time.Millisecond)

	require.NoError(t, task.Pause())
	assert.Equal(t, pipe.StatePaused, rec.next(t))
	require.NoError(t, task.Stop())
	assert.Equal(t, pipe.StateStopped, rec.next(t))
}

func TestTaskActiveUntilReported(t *testing.T) {
	defer goleak.VerifyNone(t)
	task := pipe.NewTask(pipe.TaskConfig{})
	active := make(chan bool, 1)
	require.NoError(t, task.Run(pipe.Plan{
		Report: func(s pipe.State, _ error) {
			if s.Terminal() {
				active <- task.Active()
			}
		},
	}))
	assert.True(t, <-active)
	task.Wait()
	assert.False(t, task.Active())
	require.NoError(t, task.Run(pipe.Plan{}))
	task.Wait()
}
