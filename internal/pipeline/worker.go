package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-bridge/internal/monitor"
	"signal-bridge/pkg/i18n"
)

var (
	ErrQueueFull = errors.New("signal queue is full")
	ErrClosed    = errors.New("signal worker stopped")
)

// Task is one unit of intake work.
type Task struct {
	ID        string
	Source    Source
	ChannelID string
	Text      string
	Image     []byte
	// Reply, when set, receives the outcome. The worker never blocks on it,
	// so it should be buffered.
	Reply chan<- Outcome
}

// Worker runs tasks one at a time, in submission order.
type Worker struct {
	p       *Pipeline
	metrics *monitor.SystemMetrics
	tasks   chan Task

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

func NewWorker(p *Pipeline, size int) *Worker {
	if size <= 0 {
		size = 32
	}
	return &Worker{
		p:       p,
		metrics: p.metrics,
		tasks:   make(chan Task, size),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Tasks run with ctx; once ctx is
// done the remaining queue is abandoned.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	log.Printf(i18n.Get("WorkerStarted"), cap(w.tasks))
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-w.tasks:
				if !ok {
					return
				}
				w.metrics.SetQueueDepth(len(w.tasks))
				w.run(ctx, t)
			}
		}
	}()
}

// Submit enqueues t without blocking and returns its task id.
func (w *Worker) Submit(t Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return "", ErrClosed
	}
	select {
	case w.tasks <- t:
		w.metrics.SetQueueDepth(len(w.tasks))
		return t.ID, nil
	default:
		log.Printf(i18n.Get("WorkerQueueFull"), t.ID)
		return "", ErrQueueFull
	}
}

// Pending returns the number of queued tasks.
func (w *Worker) Pending() int { return len(w.tasks) }

// Stop refuses new tasks, lets the queued ones finish and waits for the
// goroutine, or for ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.tasks)
	}
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, t Task) {
	out := w.safeProcess(ctx, t)
	if t.Reply != nil {
		select {
		case t.Reply <- out:
		default:
			log.Printf("⚠️ reply for task %s dropped, receiver not ready", t.ID)
		}
	}
}

func (w *Worker) safeProcess(ctx context.Context, t Task) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf(i18n.Get("WorkerTaskPanic"), t.ID, r)
			w.metrics.IncrementErrors()
			out = Outcome{
				TaskID:   t.ID,
				Source:   t.Source,
				Stage:    StageFailed,
				Message:  i18n.M().ReplyImageFailed,
				Duration: time.Since(start),
			}
		}
	}()
	return w.p.Process(ctx, t)
}
