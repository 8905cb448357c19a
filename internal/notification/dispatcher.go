package notification

import (
    "context"
    "errors"
    "log/slog"
    "sync"
    "time"

    "github.com/sethvargo/go-retry"
    "go.uber.org/atomic"
)

var (
    // ErrQueueFull is returned when the dispatcher cannot accept more work.
    ErrQueueFull = errors.New("notification queue full")
    // ErrDispatcherClosed is returned by Send after Close.
    ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// DispatcherConfig bounds the async delivery pipeline.
type DispatcherConfig struct {
    Workers    int
    QueueSize  int
    MaxRetries uint64
    BaseDelay  time.Duration
}

type job struct {
    ctx context.Context
    msg Message
}

// Dispatcher hands messages to a Notifier on background workers so callers
// never wait on delivery. Failed sends are retried with exponential backoff;
// a full queue drops the message instead of blocking.
type Dispatcher struct {
    next   Notifier
    logger *slog.Logger
    cfg    DispatcherConfig

    queue chan job
    done  chan struct{}
    wg    sync.WaitGroup

    // mu orders Send against Close: once closed is set no Send can enqueue,
    // so everything accepted is seen by the draining workers.
    mu     sync.RWMutex
    closed bool

    delivered atomic.Uint64
    failed    atomic.Uint64
    dropped   atomic.Uint64
}

// NewDispatcher starts cfg.Workers workers in front of next.
func NewDispatcher(next Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
    if cfg.Workers < 1 {
        cfg.Workers = 1
    }
    if cfg.QueueSize < 1 {
        cfg.QueueSize = 1
    }
    if cfg.BaseDelay <= 0 {
        cfg.BaseDelay = 100 * time.Millisecond
    }
    if logger == nil {
        logger = slog.Default()
    }

    d := &Dispatcher{
        next:   next,
        logger: logger,
        cfg:    cfg,
        queue:  make(chan job, cfg.QueueSize),
        done:   make(chan struct{}),
    }
    for i := 0; i < cfg.Workers; i++ {
        d.wg.Add(1)
        go d.run()
    }
    return d
}

// Send enqueues message and returns immediately. The request context's
// cancellation is detached; its values are kept for logging.
func (d *Dispatcher) Send(ctx context.Context, message Message) error {
    d.mu.RLock()
    defer d.mu.RUnlock()

    if d.closed {
        return ErrDispatcherClosed
    }
    select {
    case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: message}:
        return nil
    default:
        d.dropped.Inc()
        return ErrQueueFull
    }
}

func (d *Dispatcher) run() {
    defer d.wg.Done()
    for {
        select {
        case j := <-d.queue:
            d.deliver(j)
        case <-d.done:
            for {
                select {
                case j := <-d.queue:
                    d.deliver(j)
                default:
                    return
                }
            }
        }
    }
}

func (d *Dispatcher) deliver(j job) {
    b := retry.NewExponential(d.cfg.BaseDelay)
    b = retry.WithCappedDuration(5*time.Second, b)
    b = retry.WithMaxRetries(d.cfg.MaxRetries, b)

    err := retry.Do(j.ctx, b, func(ctx context.Context) error {
        if err := d.next.Send(ctx, j.msg); err != nil {
            return retry.RetryableError(err)
        }
        return nil
    })
    if err != nil {
        d.failed.Inc()
        d.logger.WarnContext(j.ctx, "notification delivery failed",
            slog.String("kind", j.msg.Kind),
            slog.String("destination", j.msg.Destination),
            slog.Any("error", err),
        )
        return
    }
    d.delivered.Inc()
}

// Close stops accepting messages and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
    d.mu.Lock()
    if !d.closed {
        d.closed = true
        close(d.done)
    }
    d.mu.Unlock()

    finished := make(chan struct{})
    go func() {
        d.wg.Wait()
        close(finished)
    }()

    select {
    case <-finished:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

// Delivered counts messages the downstream notifier accepted.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

// Failed counts messages that exhausted their retries.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

// Dropped counts messages rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
