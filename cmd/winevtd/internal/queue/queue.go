// Package queue wires the configured sources to the configured destinations.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/runreveal/lib/await"

	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/eventlog"
	"github.com/runreveal/winevt/x/multi"
)

type Source struct {
	Name   string
	Source flow.Source[eventlog.Event]
}

type Destination struct {
	Name        string
	Destination flow.Destination[[]byte]
}

type Option func(*Queue)

func WithSources(srcs map[string]Source) Option {
	return func(q *Queue) {
		q.Sources = srcs
	}
}

func WithDestinations(dsts map[string]Destination) Option {
	return func(q *Queue) {
		q.Destinations = dsts
	}
}

type Queue struct {
	Sources      map[string]Source
	Destinations map[string]Destination
}

var (
	ErrNoSources      = errors.New("no sources configured")
	ErrNoDestinations = errors.New("no destinations configured")
)

func (q *Queue) Validate() error {
	if len(q.Sources) == 0 {
		return ErrNoSources
	}
	if len(q.Destinations) == 0 {
		return ErrNoDestinations
	}
	return nil
}

func New(opts ...Option) *Queue {
	var q Queue
	for _, opt := range opts {
		opt(&q)
	}
	return &q
}

// Encode turns an event into the JSON payload the destinations receive. The
// message key and topic are carried over.
func Encode(ctx context.Context, msg flow.Message[eventlog.Event]) ([]flow.Message[[]byte], error) {
	bts, err := eventlog.MarshalEvent(msg.Value)
	if err != nil {
		return nil, err
	}
	return []flow.Message[[]byte]{{
		Key:        msg.Key,
		Topic:      msg.Topic,
		Value:      bts,
		Attributes: msg.Attributes,
	}}, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (q *Queue) Run(ctx context.Context) error {
	if err := q.Validate(); err != nil {
		return err
	}

	w := await.New(await.WithSignals)

	var srcs []flow.Source[eventlog.Event]
	for _, name := range sortedKeys(q.Sources) {
		s := q.Sources[name]
		if r, ok := s.Source.(await.Runner); ok {
			w.AddNamed(r, "source:"+name)
		}
		srcs = append(srcs, s.Source)
	}

	var dsts []flow.Destination[[]byte]
	for _, name := range sortedKeys(q.Destinations) {
		d := q.Destinations[name]
		if r, ok := d.Destination.(await.Runner); ok {
			w.AddNamed(r, "destination:"+name)
		}
		dsts = append(dsts, d.Destination)
	}

	multiSrc := multi.NewMultiSource(srcs)
	w.AddNamed(multiSrc, "multisource")

	p, err := flow.New(flow.Config[eventlog.Event, []byte]{
		Source:      multiSrc,
		Destination: multi.NewMultiDestination(dsts),
		Handler:     flow.HandlerFunc[eventlog.Event, []byte](Encode),
	}, flow.Parallelism(1))
	if err != nil {
		return err
	}
	w.AddNamed(p, "processor")

	slog.Info("running queue", "sources", sortedKeys(q.Sources), "destinations", sortedKeys(q.Destinations))
	err = w.Run(ctx)
	slog.Error("await error", "error", err)
	return err
}
