// Package poller turns a batch oriented Poller into a flow.Source.
package poller

import (
	"context"

	"github.com/runreveal/winevt/flow"
)

// Poller returns up to n messages and one ack for the whole batch. An empty
// batch is valid and means nothing was available.
type Poller[T any] interface {
	Poll(context.Context, int) ([]flow.Message[T], func(), error)
}

type PollFunc[T any] func(context.Context, int) ([]flow.Message[T], func(), error)

func (pf PollFunc[T]) Poll(ctx context.Context, n int) ([]flow.Message[T], func(), error) {
	return pf(ctx, n)
}

type Source[T any] struct {
	msgChan   chan flow.MsgAck[T]
	batchSize int

	poller Poller[T]
}

type Opts struct {
	BatchSize int
}

type Option func(*Opts)

func WithBatchSize(size int) Option {
	return func(opts *Opts) {
		opts.BatchSize = size
	}
}

func New[T any](p Poller[T], opts ...Option) *Source[T] {
	cfg := Opts{BatchSize: 100}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Source[T]{
		poller:    p,
		msgChan:   make(chan flow.MsgAck[T], cfg.BatchSize),
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is done or the poller fails. Every message of a batch
// shares one ack that fires when the last of them is acked.
func (s *Source[T]) Run(ctx context.Context) error {
	for {
		msgs, ack, err := s.poller.Poll(ctx, s.batchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			flow.Ack(ack)
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		ackFn := flow.AckLast(ack, len(msgs))

		for _, m := range msgs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case s.msgChan <- flow.MsgAck[T]{Msg: m, Ack: ackFn}:
			}
		}
	}
}

func (s *Source[T]) Recv(ctx context.Context) (flow.Message[T], func(), error) {
	select {
	case <-ctx.Done():
		return flow.Message[T]{}, nil, ctx.Err()
	case ma := <-s.msgChan:
		return ma.Msg, ma.Ack, nil
	}
}
