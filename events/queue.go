package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

const maxBatchSize = 32

var (
	// ErrQueueFull is returned by Queue.Submit when the backlog is full.
	ErrQueueFull = errors.New("event queue is full")
	// ErrQueueClosed is returned by Queue.Submit after Close.
	ErrQueueClosed = errors.New("event queue is closed")
)

// Queue hands events to a sink from its own goroutine, so Submit never
// waits for delivery. Events that pile up while a delivery is in flight are
// sent together when the sink is a BatchSink.
type Queue struct {
	sink    Sink
	timeout time.Duration
	onError func(batch []Event, err error)

	mu      sync.RWMutex
	closed  bool
	pending chan Event
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ Sink = (*Queue)(nil)

// NewQueue starts delivering to sink. Each delivery is bounded by timeout
// when it is positive. onError, which may be nil, is called from the
// delivery goroutine for every failed delivery.
func NewQueue(sink Sink, size int, timeout time.Duration, onError func(batch []Event, err error)) *Queue {
	q := &Queue{
		sink:    sink,
		timeout: timeout,
		onError: onError,
		pending: make(chan Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit validates ev and queues it without blocking.
func (q *Queue) Submit(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.pending <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.pending {
		batch := []Event{ev}
	collect:
		for len(batch) < maxBatchSize {
			select {
			case next, ok := <-q.pending:
				if !ok {
					break collect
				}
				batch = append(batch, next)
			default:
				break collect
			}
		}
		q.deliver(batch)
	}
}

func (q *Queue) deliver(batch []Event) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	var err error
	if bs, ok := q.sink.(BatchSink); ok && len(batch) > 1 {
		err = bs.SubmitBatch(ctx, batch)
	} else {
		err = submitEach(ctx, q.sink, batch)
	}
	if err != nil && q.onError != nil {
		q.onError(batch, err)
	}
}

// Close delivers the events still queued, then closes the sink.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.pending)
		q.mu.Unlock()

		<-q.done
		q.closeErr = q.sink.Close()
	})
	return q.closeErr
}

func submitEach(ctx context.Context, sink Sink, batch []Event) error {
	var result *multierror.Error
	for _, ev := range batch {
		if err := sink.Submit(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
