package cvrp

import "context"

// stopper is implemented by variants that honor a cooperative stop request.
type stopper interface{ RequestStop() }

// Task is a solve running on its own goroutine. Result is valid only after
// Done is closed.
type Task struct {
	variant Variant
	cancel  context.CancelFunc
	done    chan struct{}

	res *Result
	err error
}

// StartTask launches the variant's Solve asynchronously and returns a handle
// to it. The task owns a derived context; Stop cancels it.
func StartTask(ctx context.Context, v Variant, p Params) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{variant: v, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.res, t.err = v.Solve(ctx, p)
	}()
	return t
}

// Done is closed when the solve has finished for any reason.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status reports the underlying variant's lifecycle state.
func (t *Task) Status() Status { return t.variant.Status() }

// Result returns the outcome. It blocks until the solve finishes.
func (t *Task) Result() (*Result, error) {
	<-t.done
	return t.res, t.err
}

// Stop requests termination at the next iteration boundary and cancels the
// task context. The best solution found so far is still returned.
func (t *Task) Stop() {
	if s, ok := t.variant.(stopper); ok {
		s.RequestStop()
	}
	t.cancel()
}
