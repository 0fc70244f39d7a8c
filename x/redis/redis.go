// Package redis appends messages to a Redis stream.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/runreveal/winevt/flow"
)

type Options struct {
	topic  string
	maxLen int64
	opts   goredis.Options
}

type Destination struct {
	opts   Options
	client *goredis.Client
}

type Option func(*Options)

func WithAddr(addr string) Option {
	return func(d *Options) {
		d.opts.Addr = addr
	}
}

func WithPassword(password string) Option {
	return func(d *Options) {
		d.opts.Password = password
	}
}

func WithUsername(username string) Option {
	return func(d *Options) {
		d.opts.Username = username
	}
}

func WithDB(db int) Option {
	return func(d *Options) {
		d.opts.DB = db
	}
}

func WithMaxRetries(n int) Option {
	return func(d *Options) {
		d.opts.MaxRetries = n
	}
}

// WithTopic sets the stream name. Messages that carry a Topic override it.
func WithTopic(topic string) Option {
	return func(d *Options) {
		d.topic = topic
	}
}

// WithMaxLen caps the stream at roughly n entries.
func WithMaxLen(n int64) Option {
	return func(d *Options) {
		d.maxLen = n
	}
}

func NewDestination(opts ...Option) *Destination {
	d := &Destination{opts: Options{topic: "winevt"}}
	for _, opt := range opts {
		opt(&d.opts)
	}
	d.client = goredis.NewClient(&d.opts.opts)
	return d
}

type binMarshaler []byte

func (b binMarshaler) MarshalBinary() ([]byte, error) {
	return b, nil
}

func (d *Destination) args(msg flow.Message[[]byte]) *goredis.XAddArgs {
	stream := d.opts.topic
	if msg.Topic != "" {
		stream = msg.Topic
	}
	values := map[string]any{"msg": binMarshaler(msg.Value)}
	if msg.Key != "" {
		values["key"] = msg.Key
	}
	return &goredis.XAddArgs{
		Stream: stream,
		MaxLen: d.opts.maxLen,
		Approx: d.opts.maxLen > 0,
		Values: values,
	}
}

// Send appends every message with a single pipelined round trip.
func (d *Destination) Send(ctx context.Context, ack func(), msgs ...flow.Message[[]byte]) error {
	if len(msgs) == 0 {
		flow.Ack(ack)
		return nil
	}
	_, err := d.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, msg := range msgs {
			p.XAdd(ctx, d.args(msg))
		}
		return nil
	})
	if err != nil {
		return err
	}
	flow.Ack(ack)
	return nil
}

func (d *Destination) Close() error {
	return d.client.Close()
}
