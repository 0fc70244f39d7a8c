// Package memory provides channel backed sources and destinations.
package memory

import (
	"context"

	"github.com/runreveal/winevt/flow"
)

type MemorySource[T any] struct {
	MsgC <-chan T
}

func NewMemSource[T any](in <-chan T) MemorySource[T] {
	return MemorySource[T]{
		MsgC: in,
	}
}

func (ms MemorySource[T]) Recv(ctx context.Context) (flow.Message[T], func(), error) {
	select {
	case <-ctx.Done():
		return flow.Message[T]{}, nil, ctx.Err()
	case v := <-ms.MsgC:
		return flow.Message[T]{Value: v}, nil, nil
	}
}

type MemoryDestination[T any] struct {
	MsgC chan<- T
}

func NewMemDestination[T any](out chan<- T) MemoryDestination[T] {
	return MemoryDestination[T]{
		MsgC: out,
	}
}

// Send writes every value to the channel and acks once all were accepted.
func (ms MemoryDestination[T]) Send(ctx context.Context, ack func(), msgs ...flow.Message[T]) error {
	for _, msg := range msgs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ms.MsgC <- msg.Value:
		}
	}
	flow.Ack(ack)
	return nil
}
