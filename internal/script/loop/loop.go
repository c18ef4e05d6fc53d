package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("loop: closed")
	ErrReentrant = errors.New("loop: blocking enqueue from inside a running job")
	ErrNoHandler = errors.New("loop: no handler for job kind")
	ErrPanic     = errors.New("loop: job panicked")
	ErrNilJob    = errors.New("loop: nil job")
)

// Handler runs the jobs that are not KindFunc
type Handler interface {
	Handle(ctx context.Context, job *Job) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// Recorder receives queue metrics
type Recorder interface {
	JobEnqueued(kind string)
	JobCompleted(kind, status string, wait, run time.Duration)
	QueueDepth(depth int)
}

// Config configures a Loop
type Config struct {
	Logger  *zap.Logger
	Metrics Recorder
}

type loopKey struct{}

// Loop runs jobs one at a time in FIFO order
type Loop struct {
	handler Handler
	logger  *zap.Logger
	metrics Recorder

	mu     sync.Mutex
	queue  []*Job
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop. handler may be nil if only KindFunc jobs are used.
func New(handler Handler, cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loop{
		handler: handler,
		logger:  logger.Named("loop"),
		metrics: cfg.Metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go l.run()
	return l
}

// Enqueue appends job to the queue without blocking
func (l *Loop) Enqueue(job *Job) (*Future, error) {
	if job == nil {
		return nil, ErrNilJob
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.seq++
	job.Seq = l.seq
	job.enqueuedAt = time.Now()
	job.future = newFuture()
	l.queue = append(l.queue, job)
	depth := len(l.queue)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.JobEnqueued(job.Kind.String())
		l.metrics.QueueDepth(depth)
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return job.future, nil
}

// EnqueueBlocking enqueues job and waits for its result.
// Calling it from inside a job of the same loop would wait on itself, so
// that case fails with ErrReentrant.
func (l *Loop) EnqueueBlocking(ctx context.Context, job *Job) (any, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	if owner, _ := ctx.Value(loopKey{}).(*Loop); owner == l {
		return nil, ErrReentrant
	}

	if job.ctx == nil {
		job.WithContext(ctx)
	}

	fut, err := l.Enqueue(job)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Go enqueues fn as a KindFunc job
func (l *Loop) Go(ctx context.Context, fn Func) (*Future, error) {
	return l.Enqueue(NewFuncJob(fn).WithContext(ctx))
}

// Len returns the number of jobs waiting to run
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Closed reports whether intake has stopped
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// InLoop reports whether ctx belongs to a job running on l
func (l *Loop) InLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Close stops intake and waits for accepted jobs to finish
func (l *Loop) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("loop: drain interrupted with %d jobs queued: %w", l.Len(), ctx.Err())
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		job, ok := l.next()
		if !ok {
			l.logger.Debug("loop drained")
			return
		}
		l.execute(job)
	}
}

func (l *Loop) next() (*Job, bool) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			job := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			depth := len(l.queue)
			l.mu.Unlock()

			if l.metrics != nil {
				l.metrics.QueueDepth(depth)
			}
			return job, true
		}
		if l.closed {
			l.mu.Unlock()
			return nil, false
		}
		l.mu.Unlock()

		<-l.wake
	}
}

func (l *Loop) execute(job *Job) {
	start := time.Now()
	wait := start.Sub(job.enqueuedAt)

	base := job.ctx
	if base == nil {
		base = context.Background()
	}
	ctx := context.WithValue(base, loopKey{}, l)

	result, err := l.invoke(ctx, job)

	if l.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		l.metrics.JobCompleted(job.Kind.String(), status, wait, time.Since(start))
	}

	job.future.complete(result, err)
}

func (l *Loop) invoke(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("job panicked",
				zap.String("job_id", job.ID.String()),
				zap.Stringer("kind", job.Kind),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = nil
			err = fmt.Errorf("%w: job %s: %v", ErrPanic, job.ID, r)
		}
	}()

	if job.Kind == KindFunc {
		if job.Func == nil {
			return nil, fmt.Errorf("%w: func job %s has no body", ErrNoHandler, job.ID)
		}
		return job.Func(ctx)
	}

	if l.handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
	}
	return l.handler.Handle(ctx, job)
}
