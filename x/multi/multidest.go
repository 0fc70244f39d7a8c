package multi

import (
	"context"

	"github.com/runreveal/winevt/flow"
)

// MultiDestination fans every batch out to all wrapped destinations. The
// batch is acked once each destination has acked it.
type MultiDestination[T any] struct {
	wrapped []flow.Destination[T]
}

func NewMultiDestination[T any](dests []flow.Destination[T]) MultiDestination[T] {
	return MultiDestination[T]{
		wrapped: dests,
	}
}

func (md MultiDestination[T]) Send(ctx context.Context, ack func(), msgs ...flow.Message[T]) error {
	if ack != nil {
		ack = flow.AckLast(ack, len(md.wrapped))
	}
	for _, d := range md.wrapped {
		err := d.Send(ctx, ack, msgs...)
		if err != nil {
			return err
		}
	}
	return nil
}
