package loop

import (
	"context"
	"strconv"
	"time"

	"github.com/GriffinCanCode/scriptbridge/internal/shared/id"
)

// Kind tags what a job asks the loop to do
type Kind uint8

const (
	// KindFunc runs Job.Func directly
	KindFunc Kind = iota
	// KindCall invokes a host method through an installed proxy
	KindCall
	// KindEvaluate evaluates a module and returns its exports
	KindEvaluate
	// KindDispatch dispatches an event to an installed event target
	KindDispatch
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindCall:
		return "call"
	case KindEvaluate:
		return "evaluate"
	case KindDispatch:
		return "dispatch"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

// Func is the body of a KindFunc job
type Func func(ctx context.Context) (any, error)

// Job is a unit of work with exclusive access to the runtime
type Job struct {
	ID      id.JobID
	Kind    Kind
	Payload any
	Func    Func

	// Seq is the position in the queue, assigned on enqueue
	Seq uint64

	ctx        context.Context
	enqueuedAt time.Time
	future     *Future
}

// NewJob creates a job of the given kind
func NewJob(kind Kind, payload any) *Job {
	return &Job{ID: id.NewJobID(), Kind: kind, Payload: payload}
}

// NewFuncJob creates a KindFunc job
func NewFuncJob(fn Func) *Job {
	return &Job{ID: id.NewJobID(), Kind: KindFunc, Func: fn}
}

// WithContext attaches caller values (trace IDs, loggers) to the job.
// Cancellation of ctx is not propagated: a dequeued job always runs.
func (j *Job) WithContext(ctx context.Context) *Job {
	j.ctx = context.WithoutCancel(ctx)
	return j
}

// Future delivers a job's result exactly once
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the job has finished
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the job finishes or ctx ends
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
