// Package batch buffers messages and hands them to a Flusher in batches.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/runreveal/winevt/flow"
)

type Flusher[T any] interface {
	Flush(context.Context, []flow.Message[T]) error
}

type FlushFunc[T any] func(context.Context, []flow.Message[T]) error

func (ff FlushFunc[T]) Flush(c context.Context, msgs []flow.Message[T]) error {
	return ff(c, msgs)
}

// ErrorHandler decides what happens to a batch whose flush failed after all
// retries. Returning nil acks the batch and keeps the destination running.
// Returning ErrDontAck keeps it running without acking. Any other error
// stops Run.
type ErrorHandler[T any] interface {
	HandleError(context.Context, error, []flow.Message[T]) error
}

type ErrorFunc[T any] func(context.Context, error, []flow.Message[T]) error

func (ef ErrorFunc[T]) HandleError(c context.Context, err error, msgs []flow.Message[T]) error {
	return ef(c, err, msgs)
}

// ErrDontAck tells the destination to drop a failed batch without acking it,
// so the source redelivers it on restart.
var ErrDontAck = errors.New("batcher: don't ack")

// Raise returns an ErrorHandler that stops the destination on any flush error.
func Raise[T any]() ErrorHandler[T] {
	return ErrorFunc[T](func(_ context.Context, err error, _ []flow.Message[T]) error {
		return err
	})
}

// DiscardAndLog logs flush errors and acks the failed batch.
func DiscardAndLog[T any]() ErrorHandler[T] {
	return ErrorFunc[T](func(_ context.Context, err error, msgs []flow.Message[T]) error {
		slog.Error("discarding batch", "error", err, "len", len(msgs))
		return nil
	})
}

// Destination is a batching destination that will buffer messages until the
// FlushLength limit is reached or the FlushFrequency timer fires, whichever
// comes first.
//
// Run must be called before Send will make progress.
type Destination[T any] struct {
	flusher     Flusher[T]
	errHandler  ErrorHandler[T]
	flushq      chan func()
	flushlen    int
	flushfreq   time.Duration
	flusherr    chan error
	stopTimeout time.Duration
	opts        Opts

	messages chan flow.MsgAck[T]
	buf      []flow.MsgAck[T]

	running bool
	syncMu  sync.Mutex
}

type OptFunc func(*Opts)

type Opts struct {
	FlushLength      int
	FlushFrequency   time.Duration
	FlushParallelism int
	FlushTimeout     time.Duration
	StopTimeout      time.Duration

	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	IsRetryable       func(error) bool
}

func FlushFrequency(d time.Duration) OptFunc {
	return func(opts *Opts) {
		opts.FlushFrequency = d
	}
}

func FlushLength(size int) OptFunc {
	return func(opts *Opts) {
		opts.FlushLength = size
	}
}

func FlushParallelism(n int) OptFunc {
	return func(opts *Opts) {
		opts.FlushParallelism = n
	}
}

// FlushTimeout bounds a single Flush call. Zero means no bound.
func FlushTimeout(d time.Duration) OptFunc {
	return func(opts *Opts) {
		opts.FlushTimeout = d
	}
}

func StopTimeout(d time.Duration) OptFunc {
	return func(opts *Opts) {
		opts.StopTimeout = d
	}
}

func MaxRetries(n int) OptFunc {
	return func(opts *Opts) {
		opts.MaxRetries = n
	}
}

func InitialBackoff(d time.Duration) OptFunc {
	return func(opts *Opts) {
		opts.InitialBackoff = d
	}
}

func BackoffMultiplier(m float64) OptFunc {
	return func(opts *Opts) {
		opts.BackoffMultiplier = m
	}
}

func IsRetryable(f func(error) bool) OptFunc {
	return func(opts *Opts) {
		opts.IsRetryable = f
	}
}

// NewDestination instantiates a new batcher.
func NewDestination[T any](f Flusher[T], e ErrorHandler[T], opts ...OptFunc) *Destination[T] {
	cfg := Opts{
		FlushLength:       100,
		FlushFrequency:    1 * time.Second,
		FlushParallelism:  2,
		StopTimeout:       5 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		IsRetryable:       func(error) bool { return true },
	}

	for _, o := range opts {
		o(&cfg)
	}

	if cfg.FlushParallelism < 1 {
		panic("FlushParallelism must be greater than or equal to 1")
	}
	if cfg.FlushLength < 1 {
		cfg.FlushLength = 1
	}
	if cfg.StopTimeout < 0 {
		cfg.StopTimeout = 0
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if e == nil {
		e = Raise[T]()
	}

	return &Destination[T]{
		flushlen:    cfg.FlushLength,
		flushq:      make(chan func(), cfg.FlushParallelism),
		flusherr:    make(chan error, cfg.FlushParallelism),
		flusher:     f,
		errHandler:  e,
		flushfreq:   cfg.FlushFrequency,
		stopTimeout: cfg.StopTimeout,
		opts:        cfg,

		messages: make(chan flow.MsgAck[T]),
	}
}

// Send accepts messages to be buffered for flushing after the FlushLength
// limit is reached or the FlushFrequency timer fires, whichever comes first.
//
// ack is called once every message of this call has been flushed.
func (d *Destination[T]) Send(ctx context.Context, ack func(), msgs ...flow.Message[T]) error {
	if len(msgs) < 1 {
		return nil
	}

	callMe := flow.AckLast(ack, len(msgs))

	for _, m := range msgs {
		select {
		case d.messages <- flow.MsgAck[T]{Msg: m, Ack: callMe}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Run starts the batching destination. It blocks until the context is
// canceled or the error handler raises, then waits up to StopTimeout for
// in-flight flushes.
func (d *Destination[T]) Run(ctx context.Context) error {
	var err error
	var epoch uint64
	epochC := make(chan uint64)
	done := make(chan struct{})
	defer close(done)
	setTimer := true

	d.syncMu.Lock()
	if d.running {
		panic("already running")
	}
	d.running = true
	d.syncMu.Unlock()

loop:
	for {
		select {
		case msg := <-d.messages:
			if setTimer {
				epc := epoch
				time.AfterFunc(d.flushfreq, func() {
					select {
					case epochC <- epc:
					case <-done:
					}
				})
				setTimer = false
			}
			d.buf = append(d.buf, msg)
			if len(d.buf) >= d.flushlen {
				epoch++
				d.flush(ctx)
				setTimer = true
			}
		case tEpoch := <-epochC:
			// stale timers from an epoch that already flushed are ignored
			if tEpoch == epoch {
				epoch++
				d.flush(ctx)
				setTimer = true
			}
		case err = <-d.flusherr:
			slog.Error("flush error", "error", err)
			break loop

		case <-ctx.Done():
			if len(d.buf) > 0 {
				go d.flush(context.Background())
			}
			break loop
		}
	}

	if len(d.flushq) == 0 {
		return err
	}

	slog.Info("stopping batcher, waiting for remaining flushes", "len", len(d.flushq))
	timer := time.NewTimer(d.stopTimeout)
	defer timer.Stop()
timeout:
	for len(d.flushq) > 0 {
		select {
		case <-timer.C:
			break timeout
		case e2 := <-d.flusherr:
			slog.Info("flush error", "error", e2)
			if err == nil {
				err = e2
			}
		case <-time.After(time.Millisecond):
		}
	}
	if len(d.flushq) == 0 {
		return err
	}

drain:
	for {
		select {
		case cncl := <-d.flushq:
			cncl()
		default:
			break drain
		}
	}
	return errDeadlock
}

var errDeadlock = errors.New("batcher: flushes timed out waiting for completion after context stopped")

func (d *Destination[T]) flush(ctx context.Context) {
	// The flush context is detached from ctx so that a shutdown does not
	// abort a flush that is already running.
	flctx, cancel := context.WithCancel(context.Background())
	select {
	case d.flushq <- cancel:
	case <-ctx.Done():
		cancel()
		return
	}
	msgs := make([]flow.MsgAck[T], len(d.buf))
	copy(msgs, d.buf)
	go func() {
		d.doflush(flctx, msgs)
		cncl := <-d.flushq
		cncl()
	}()
	d.buf = d.buf[:0]
}

func (d *Destination[T]) doflush(ctx context.Context, msgs []flow.MsgAck[T]) {
	batch := make([]flow.Message[T], 0, len(msgs))
	for _, m := range msgs {
		batch = append(batch, m.Msg)
	}

	err := d.flushWithRetry(ctx, batch)
	if err != nil {
		err = d.errHandler.HandleError(ctx, err, batch)
		if errors.Is(err, ErrDontAck) {
			return
		}
		if err != nil {
			d.flusherr <- err
			return
		}
	}

	for _, m := range msgs {
		flow.Ack(m.Ack)
	}
}

func (d *Destination[T]) flushWithRetry(ctx context.Context, batch []flow.Message[T]) error {
	backoff := d.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		err := d.flushOnce(ctx, batch)
		if err == nil {
			return nil
		}
		if attempt >= d.opts.MaxRetries || !d.opts.IsRetryable(err) {
			return err
		}
		slog.Debug("retrying flush", "error", err, "attempt", attempt+1, "backoff", backoff)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * d.opts.BackoffMultiplier)
	}
}

func (d *Destination[T]) flushOnce(ctx context.Context, batch []flow.Message[T]) error {
	if d.opts.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.FlushTimeout)
		defer cancel()
	}
	return d.flusher.Flush(ctx, batch)
}
