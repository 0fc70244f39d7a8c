// Package eventlog reads a Windows Event Log channel as a flow.Source.
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/ksuid"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/checkpoint"
	"github.com/runreveal/winevt/x/poller"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winevt",
		Subsystem: "eventlog",
		Name:      "records_total",
		Help:      "Records read from a channel.",
	}, []string{"channel"})
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winevt",
		Subsystem: "eventlog",
		Name:      "batches_total",
		Help:      "Non-empty batches fetched from a channel.",
	}, []string{"channel"})
	suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winevt",
		Subsystem: "eventlog",
		Name:      "suppressed_total",
		Help:      "Fetches skipped by the rate limiter.",
	}, []string{"channel"})
	renderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winevt",
		Subsystem: "eventlog",
		Name:      "render_errors_total",
		Help:      "Records skipped because they could not be rendered.",
	}, []string{"channel"})
)

// ErrCancelled is returned by Run when the subscription was cancelled.
var ErrCancelled = errors.New("eventlog: subscription cancelled")

// Event is one record read from a channel.
type Event struct {
	Channel string               `json:"channel"`
	Message string               `json:"message,omitempty"`
	Inserts []any                `json:"inserts,omitempty"`
	Event   *EventLog            `json:"event,omitempty"`
	System  *winevt.SystemFields `json:"system,omitempty"`
	XML     string               `json:"-"`
}

type Option func(*Source)

func WithChannel(channel string) Option {
	return func(s *Source) {
		s.channel = channel
	}
}

func WithQuery(query string) Option {
	return func(s *Source) {
		s.query = query
	}
}

func WithSession(sess *winevt.Session) Option {
	return func(s *Source) {
		s.subOpts = append(s.subOpts, winevt.WithSubscriptionSession(sess))
	}
}

// WithTail starts at new events when no checkpoint exists.
func WithTail(tail bool) Option {
	return func(s *Source) {
		s.subOpts = append(s.subOpts, winevt.WithTail(tail))
	}
}

func WithRateLimit(n int) Option {
	return func(s *Source) {
		s.subOpts = append(s.subOpts, winevt.WithRateLimit(n))
	}
}

func WithBatchSize(n int) Option {
	return func(s *Source) {
		s.batchSize = n
	}
}

func WithLocale(code string) Option {
	return func(s *Source) {
		s.locale = code
	}
}

// WithRenderXML selects XML rendering, which also fills Event.Event. When
// false only the decomposed system fields are rendered.
func WithRenderXML(b bool) Option {
	return func(s *Source) {
		s.renderXML = b
	}
}

func WithExpandInserts(b bool) Option {
	return func(s *Source) {
		s.expandInserts = b
	}
}

// WithCheckpoint persists the bookmark of every acked batch under key.
func WithCheckpoint(store checkpoint.Store, key string) Option {
	return func(s *Source) {
		s.store = store
		s.key = key
	}
}

// WithWaitTimeout bounds a single wait on the subscription signal, which is
// also how quickly Run notices cancellation while idle.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.waitTimeout = d
	}
}

func WithSubscriptionOptions(opts ...winevt.SubscriptionOption) Option {
	return func(s *Source) {
		s.subOpts = append(s.subOpts, opts...)
	}
}

// Source follows one channel. Run must be called for Recv to make progress.
type Source struct {
	api     winevt.API
	sub     *winevt.Subscription
	src     *poller.Source[Event]
	subOpts []winevt.SubscriptionOption

	channel       string
	query         string
	locale        string
	renderXML     bool
	expandInserts bool
	batchSize     int
	waitTimeout   time.Duration

	store checkpoint.Store
	key   string

	commitMu  sync.Mutex
	seq       uint64
	committed uint64
	acked     map[uint64]string

	suppressed uint64
}

func New(api winevt.API, opts ...Option) (*Source, error) {
	s := &Source{
		api:         api,
		query:       "*",
		renderXML:   true,
		batchSize:   winevt.MaxBatch,
		waitTimeout: time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.channel == "" {
		return nil, &winevt.ConfigurationError{Field: "channel", Value: `""`, Reason: "must not be empty"}
	}
	if s.key == "" {
		s.key = s.channel
	}
	if s.batchSize < 1 || s.batchSize > winevt.MaxBatch {
		s.batchSize = winevt.MaxBatch
	}

	var err error
	s.sub, err = winevt.NewSubscription(api, append(s.subOpts, winevt.WithSubscriptionBatchSize(s.batchSize))...)
	if err != nil {
		return nil, err
	}
	if s.locale != "" {
		if err := s.sub.SetLocale(s.locale); err != nil {
			return nil, err
		}
	}
	s.sub.RenderAsXML = s.renderXML
	s.sub.ExpandInserts = s.expandInserts
	s.src = poller.New[Event](s, poller.WithBatchSize(s.batchSize))
	return s, nil
}

// Run subscribes, resuming from the checkpoint when there is one, and polls
// until ctx is done. The subscription is closed on return.
func (s *Source) Run(ctx context.Context) error {
	defer s.sub.Close()
	if err := s.subscribe(ctx); err != nil {
		return err
	}
	slog.Info("subscribed", "channel", s.channel, "query", s.query)
	return s.src.Run(ctx)
}

func (s *Source) subscribe(ctx context.Context) error {
	var bm *winevt.Bookmark
	if s.store != nil {
		saved, err := s.store.Load(ctx, s.key)
		if err != nil {
			return err
		}
		if saved != "" {
			bm, err = winevt.BookmarkFromXML(s.api, saved)
			if err != nil {
				return errors.Wrap(err, "eventlog: restore bookmark")
			}
			defer bm.Close()
			slog.Debug("resuming from checkpoint", "channel", s.channel, "key", s.key)
		}
	}
	return s.sub.Subscribe(s.channel, s.query, bm)
}

func (s *Source) Recv(ctx context.Context) (flow.Message[Event], func(), error) {
	return s.src.Recv(ctx)
}

// Poll fetches one batch. An empty result means the channel is idle or the
// rate limit was reached.
func (s *Source) Poll(ctx context.Context, _ int) ([]flow.Message[Event], func(), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	ok, err := s.sub.Next()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, s.idle(ctx)
	}
	defer s.sub.ReleasePending()
	batchesTotal.WithLabelValues(s.channel).Inc()

	msgs := make([]flow.Message[Event], 0, len(s.sub.Pending()))
	for _, h := range s.sub.Pending() {
		rec, err := s.sub.Render(h)
		if err != nil {
			renderErrorsTotal.WithLabelValues(s.channel).Inc()
			slog.Warn("skipping record", "channel", s.channel, "error", err)
			continue
		}
		msgs = append(msgs, flow.Message[Event]{
			Key:   ksuid.New().String(),
			Topic: s.channel,
			Value: s.toEvent(rec),
		})
	}
	recordsTotal.WithLabelValues(s.channel).Add(float64(len(msgs)))

	bookmark, err := s.sub.Bookmark()
	if err != nil {
		return nil, nil, err
	}
	s.seq++
	seq := s.seq
	return msgs, func() { s.commit(seq, bookmark) }, nil
}

func (s *Source) idle(ctx context.Context) error {
	switch s.sub.State() {
	case winevt.StateCancelled:
		return ErrCancelled
	}
	if n := s.sub.Suppressed(); n != s.suppressed {
		suppressedTotal.WithLabelValues(s.channel).Add(float64(n - s.suppressed))
		s.suppressed = n
		// The signal says nothing about when the next window opens.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		return nil
	}
	_, err := s.sub.Wait(s.waitTimeout)
	return err
}

func (s *Source) toEvent(rec winevt.Record) Event {
	return FromRecord(s.channel, rec)
}

// FromRecord builds an Event, parsing the XML rendering when there is one.
func FromRecord(channel string, rec winevt.Record) Event {
	ev := Event{
		Channel: channel,
		Message: rec.Message,
		Inserts: rec.Inserts,
		System:  rec.System,
		XML:     rec.XML,
	}
	if rec.XML != "" {
		parsed, err := ParseXML(rec.XML)
		if err != nil {
			slog.Debug("unparseable event xml", "channel", channel, "error", err)
		} else {
			ev.Event = parsed
		}
	}
	return ev
}

// commit records that batch seq was delivered. The stored bookmark only
// advances through the contiguous run of delivered batches after the last
// commit, so a batch acked ahead of an earlier one waits for it.
func (s *Source) commit(seq uint64, bookmark string) {
	if s.store == nil {
		return
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if seq <= s.committed {
		return
	}
	if s.acked == nil {
		s.acked = map[uint64]string{}
	}
	s.acked[seq] = bookmark

	next := s.committed
	for {
		if _, ok := s.acked[next+1]; !ok {
			break
		}
		next++
	}
	if next == s.committed {
		return
	}
	if err := s.store.Save(context.Background(), s.key, s.acked[next]); err != nil {
		slog.Error("checkpoint failed", "channel", s.channel, "error", err)
		return
	}
	for i := s.committed + 1; i <= next; i++ {
		delete(s.acked, i)
	}
	s.committed = next
}

// MarshalEvent is the default encoding used by the daemon destinations.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
