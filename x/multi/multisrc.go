// Package multi combines several sources or destinations into one.
package multi

import (
	"context"
	"sync"

	"github.com/runreveal/winevt/flow"
)

// MultiSource multiplexes multiple sources into one. Faster sources can
// starve slower ones since they compete for the same channel.
type MultiSource[T any] struct {
	wrapped []flow.Source[T]
	msgAckC chan flow.MsgAck[T]
}

func NewMultiSource[T any](sources []flow.Source[T]) MultiSource[T] {
	return MultiSource[T]{
		wrapped: sources,
		msgAckC: make(chan flow.MsgAck[T]),
	}
}

// Run reads every wrapped source in its own goroutine and makes the messages
// available through Recv. It returns the first source error.
func (ms MultiSource[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	errc := make(chan error, len(ms.wrapped))

	for _, src := range ms.wrapped {
		wg.Add(1)
		go func(src flow.Source[T]) {
			defer wg.Done()
			for {
				msg, ack, err := src.Recv(ctx)
				if err != nil {
					errc <- err
					return
				}
				select {
				case ms.msgAckC <- flow.MsgAck[T]{Msg: msg, Ack: ack}:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errc:
	}
	cancel()
	wg.Wait()
	return err
}

func (ms MultiSource[T]) Recv(ctx context.Context) (flow.Message[T], func(), error) {
	select {
	case ma := <-ms.msgAckC:
		return ma.Msg, ma.Ack, nil
	case <-ctx.Done():
		return flow.Message[T]{}, nil, ctx.Err()
	}
}
