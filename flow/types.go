// Package flow moves messages from sources to destinations. Sources hand out
// an ack callback with every message; destinations call it once the message
// is durably delivered, which is what lets a source commit its position.
package flow

import (
	"context"
	"encoding/json"
)

type Attributes interface {
	Unwrap() Attributes
}

type Message[T any] struct {
	Key        string
	Value      T
	Topic      string
	Attributes Attributes
}

// MsgAck pairs a message with its acknowledgement callback.
type MsgAck[T any] struct {
	Msg Message[T]
	Ack func()
}

type Source[T any] interface {
	Recv(context.Context) (Message[T], func(), error)
}

type SourceFunc[T any] func(context.Context) (Message[T], func(), error)

func (sf SourceFunc[T]) Recv(ctx context.Context) (Message[T], func(), error) {
	return sf(ctx)
}

type Destination[T any] interface {
	Send(context.Context, func(), ...Message[T]) error
}

type DestinationFunc[T any] func(context.Context, func(), ...Message[T]) error

func (df DestinationFunc[T]) Send(ctx context.Context, ack func(), msgs ...Message[T]) error {
	return df(ctx, ack, msgs...)
}

type Handler[T1, T2 any] interface {
	Handle(context.Context, Message[T1]) ([]Message[T2], error)
}

type HandlerFunc[T1, T2 any] func(context.Context, Message[T1]) ([]Message[T2], error)

func (hf HandlerFunc[T1, T2]) Handle(ctx context.Context, msg Message[T1]) ([]Message[T2], error) {
	return hf(ctx, msg)
}

// Pipe returns a handler that forwards every message unchanged.
func Pipe[T any]() Handler[T, T] {
	return HandlerFunc[T, T](func(ctx context.Context, msg Message[T]) ([]Message[T], error) {
		return []Message[T]{msg}, nil
	})
}

// Ack calls ack if it is set.
func Ack(ack func()) {
	if ack != nil {
		ack()
	}
}

// AckLast returns a callback that calls ack only on its num-th invocation.
// It is used to acknowledge a batch once every part of it was delivered.
func AckLast(ack func(), num int) func() {
	if num < 1 {
		num = 1
	}
	ackChu := make(chan struct{}, num-1)
	for i := 0; i < num-1; i++ {
		ackChu <- struct{}{}
	}
	return func() {
		select {
		case <-ackChu:
		default:
			Ack(ack)
		}
	}
}

type DeserFunc[T any] func([]byte) (T, error)

type ByteSource interface {
	Recv(context.Context) (Message[[]byte], func(), error)
}

func TransformUnmarshalJSON[T any](bs []byte) (T, error) {
	var val T
	err := json.Unmarshal(bs, &val)
	return val, err
}

type DeserializationSource[T any] struct {
	src   ByteSource
	xform DeserFunc[T]
}

func NewDeserSource[T any](src ByteSource, xform DeserFunc[T]) DeserializationSource[T] {
	return DeserializationSource[T]{
		src:   src,
		xform: xform,
	}
}

func (ds DeserializationSource[T]) Recv(ctx context.Context) (Message[T], func(), error) {
	msg, ack, err := ds.src.Recv(ctx)
	if err != nil {
		return Message[T]{}, ack, err
	}
	val, err := ds.xform(msg.Value)

	ret := Message[T]{
		Key:        msg.Key,
		Value:      val,
		Topic:      msg.Topic,
		Attributes: msg.Attributes,
	}
	return ret, ack, err
}
