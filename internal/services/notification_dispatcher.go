package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	defaultNotificationWorkers     = 2
	defaultNotificationQueueSize   = 256
	defaultNotificationMaxAttempts = 5
	defaultNotificationBackoff     = 500 * time.Millisecond
	defaultNotificationMaxBackoff  = 30 * time.Second
)

var (
	// ErrNotificationQueueFull is returned when the buffer cannot take another task.
	ErrNotificationQueueFull = errors.New("notification dispatcher: queue full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher: closed")
)

// NotificationDispatcherDeps wires the dispatcher.
type NotificationDispatcherDeps struct {
	Sender      NotificationSender
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	Meter       metric.Meter
}

type notificationDispatcher struct {
	sender      NotificationSender
	queue       chan domain.NotificationTask
	maxAttempts int
	backoff     func() *gax.Backoff
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)

	delivered metric.Int64Counter
	retried   metric.Int64Counter
	dropped   metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc
}

// NewNotificationDispatcher starts the worker pool.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.New("notification dispatcher: sender is required")
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultNotificationWorkers
	}
	size := deps.QueueSize
	if size <= 0 {
		size = defaultNotificationQueueSize
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultNotificationMaxAttempts
	}
	initial := deps.Backoff
	if initial <= 0 {
		initial = defaultNotificationBackoff
	}
	maxBackoff := deps.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultNotificationMaxBackoff
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	meter := deps.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("notifications")
	}
	delivered, err := meter.Int64Counter("notifications.delivered", metric.WithDescription("Notifications accepted by the sender"))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("notifications.retried", metric.WithDescription("Notification attempts scheduled for retry"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("notifications.dropped", metric.WithDescription("Notifications given up on"))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d := &notificationDispatcher{
		sender:      deps.Sender,
		queue:       make(chan domain.NotificationTask, size),
		maxAttempts: attempts,
		backoff: func() *gax.Backoff {
			return &gax.Backoff{Initial: initial, Max: maxBackoff, Multiplier: 2}
		},
		now:    func() time.Time { return clock().UTC() },
		logger:    logger,
		delivered: delivered,
		retried:   retried,
		dropped:   dropped,
		runCtx:    runCtx,
		cancel: cancel,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d, nil
}

// Enqueue never blocks.
func (d *notificationDispatcher) Enqueue(ctx context.Context, task domain.NotificationTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = d.now()
	}
	select {
	case d.queue <- task:
		d.logger(ctx, "notification.enqueued", map[string]any{"kind": task.Kind, "orderId": task.OrderID})
		return nil
	default:
		return ErrNotificationQueueFull
	}
}

// Close stops intake and waits for queued tasks until ctx expires. Retries still
// waiting when ctx expires are abandoned.
func (d *notificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *notificationDispatcher) work() {
	defer d.wg.Done()
	for task := range d.queue {
		d.deliver(task)
	}
}

func (d *notificationDispatcher) deliver(task domain.NotificationTask) {
	// Counters are recorded on a background context so shutdown cancellation
	// does not suppress the final outcome.
	mctx := context.Background()
	kind := attribute.String("kind", string(task.Kind))
	bo := d.backoff()
	for {
		if d.runCtx.Err() != nil {
			d.dropped.Add(mctx, 1, metric.WithAttributes(kind, attribute.String("reason", "abandoned")))
			d.logger(d.runCtx, "notification.abandoned", map[string]any{"kind": task.Kind, "orderId": task.OrderID, "attempt": task.Attempt})
			return
		}
		task.Attempt++
		err := d.sender.Send(d.runCtx, task)
		if err == nil {
			d.delivered.Add(mctx, 1, metric.WithAttributes(kind))
			d.logger(d.runCtx, "notification.delivered", map[string]any{"kind": task.Kind, "orderId": task.OrderID, "attempt": task.Attempt})
			return
		}
		if task.Attempt >= d.maxAttempts {
			d.dropped.Add(mctx, 1, metric.WithAttributes(kind, attribute.String("reason", "exhausted")))
			d.logger(d.runCtx, "notification.dropped", map[string]any{"kind": task.Kind, "orderId": task.OrderID, "attempt": task.Attempt, "error": err})
			return
		}
		d.retried.Add(mctx, 1, metric.WithAttributes(kind))
		pause := bo.Pause()
		d.logger(d.runCtx, "notification.retry", map[string]any{"kind": task.Kind, "orderId": task.OrderID, "attempt": task.Attempt, "pause": pause.String(), "cause": err.Error()})
		if gax.Sleep(d.runCtx, pause) != nil {
			d.dropped.Add(mctx, 1, metric.WithAttributes(kind, attribute.String("reason", "abandoned")))
			d.logger(d.runCtx, "notification.abandoned", map[string]any{"kind": task.Kind, "orderId": task.OrderID, "attempt": task.Attempt})
			return
		}
	}
}
