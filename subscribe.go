package winevt

import (
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
)

// ErrNotSubscribed is returned when fetching from a Subscription before
// Subscribe succeeded.
var ErrNotSubscribed = errors.New("winevt: subscription has no active filter")

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// WithSubscriptionSession subscribes on a remote machine.
func WithSubscriptionSession(s *Session) SubscriptionOption {
	return func(sub *Subscription) {
		sub.session = s
	}
}

// WithTail starts new subscriptions at future events instead of the oldest
// record when no bookmark is given.
func WithTail(tail bool) SubscriptionOption {
	return func(sub *Subscription) {
		sub.Tail = tail
	}
}

// WithRateLimit caps delivered records per second. Use RateInfinite to
// disable the cap.
func WithRateLimit(n int) SubscriptionOption {
	return func(sub *Subscription) {
		sub.rateLimit = n
	}
}

// WithClock sets the clock used by the rate limiter.
func WithClock(clk clock.Clock) SubscriptionOption {
	return func(sub *Subscription) {
		sub.clock = clk
	}
}

// WithSubscriptionBatchSize sets how many results are fetched at once.
func WithSubscriptionBatchSize(n int) SubscriptionOption {
	return func(sub *Subscription) {
		sub.batchSize = n
	}
}

// WithFetchTimeout bounds each fetch. The default blocks until the OS
// reports a result or exhaustion.
func WithFetchTimeout(d time.Duration) SubscriptionOption {
	return func(sub *Subscription) {
		sub.timeout = uint32(d.Milliseconds())
	}
}

// Subscription is a live feed of new results from a channel.
type Subscription struct {
	api     API
	reg     *Registry
	r       *Renderer
	cur     *Cursor
	pend    *Batch
	limiter *RateLimiter
	clock   clock.Clock

	session       *Session
	sessionHandle *Guard
	signal        *Guard
	handle        *Guard
	bookmark      *Bookmark

	rateLimit int
	batchSize int
	timeout   uint32

	Tail               bool
	RenderAsXML        bool
	PreserveQualifiers bool
	PreserveSID        bool
	ExpandInserts      bool
	Locale             Locale

	state      State
	suppressed uint64
}

// NewSubscription returns an unsubscribed Subscription. An invalid rate
// limit is reported here as a *ConfigurationError.
func NewSubscription(api API, opts ...SubscriptionOption) (*Subscription, error) {
	reg := NewRegistry(api)
	s := &Subscription{
		api:         api,
		reg:         reg,
		r:           NewRenderer(reg),
		rateLimit:   RateInfinite,
		batchSize:   MaxBatch,
		timeout:     Infinite,
		RenderAsXML: true,
		Locale:      NeutralLocale,
	}
	for _, o := range opts {
		o(s)
	}
	var err error
	s.limiter, err = NewRateLimiter(s.rateLimit, s.clock)
	if err != nil {
		return nil, err
	}
	s.pend = NewBatch(s.batchSize)
	s.cur = NewCursor(reg, s.timeout)
	return s, nil
}

// SetLocale selects the message locale by code.
func (s *Subscription) SetLocale(code string) error {
	l, err := LookupLocale(code)
	if err != nil {
		return err
	}
	s.Locale = l
	return nil
}

// RateLimit returns the configured ceiling.
func (s *Subscription) RateLimit() int { return s.limiter.Ceiling() }

func (s *Subscription) State() State { return s.state }

// Suppressed counts fetches skipped by the rate limiter.
func (s *Subscription) Suppressed() uint64 { return s.suppressed }

// Registry exposes handle accounting for the subscription.
func (s *Subscription) Registry() *Registry { return s.reg }

// Subscribe starts delivering results of query on path. When bookmark is
// non-nil delivery starts after it; the bookmark is copied and the caller
// keeps ownership. Any previous subscription handle is released first.
func (s *Subscription) Subscribe(path, query string, bookmark *Bookmark) error {
	if s.state == StateClosed {
		return ErrClosed
	}
	s.reg.ReleaseAll(s.pend)
	s.handle.Release()
	// Until the new handle is acquired there is no feed to read from.
	s.state = StateCreated

	var err error
	if s.sessionHandle == nil && s.session != nil {
		if s.sessionHandle, err = s.session.open(s.reg); err != nil {
			return err
		}
	}
	if s.signal == nil {
		s.signal, err = s.reg.Acquire(KindSignal, s.api.CreateSignal)
		if err != nil {
			return err
		}
	}

	var (
		next  *Bookmark
		after Handle
		flags SubscribeFlag
	)
	switch {
	case bookmark != nil:
		xml, err := bookmark.Render()
		if err != nil {
			return err
		}
		if next, err = BookmarkFromXML(s.api, xml); err != nil {
			return err
		}
		after = next.Handle()
		flags = SubscribeStartAfterBookmark
	case s.Tail:
		flags = SubscribeToFutureEvents
	default:
		flags = SubscribeStartAtOldestRecord
	}
	if next == nil {
		if next, err = NewBookmark(s.api); err != nil {
			return err
		}
	}

	h, err := s.reg.Acquire(KindSubscription, func() (Handle, error) {
		return s.api.Subscribe(s.sessionHandle.Handle(), s.signal.Handle(), path, query, after, flags)
	})
	if err != nil {
		next.Close()
		var oe *OsResourceError
		if errors.As(err, &oe) && oe.Code == ErrorEvtChannelNotFound {
			return &ChannelNotFoundError{Channel: path}
		}
		if s.session != nil {
			return remoteError(s.session.Server, err)
		}
		return err
	}

	if s.bookmark != nil {
		s.bookmark.Close()
	}
	s.bookmark = next
	s.handle = h
	s.cur = NewCursor(s.reg, s.timeout)
	s.state = StateActive
	return nil
}

// Next fetches the next batch and advances the bookmark past it. It reports
// false when nothing is available, when the rate limit suppressed the
// fetch, or when the subscription was cancelled.
func (s *Subscription) Next() (bool, error) {
	if s.state == StateClosed {
		return false, ErrClosed
	}
	if s.handle.Handle() == 0 {
		return false, ErrNotSubscribed
	}
	if s.cur.IsCancelled() {
		s.reg.ReleaseAll(s.pend)
		s.state = StateCancelled
		return false, nil
	}
	if !s.limiter.Allow() {
		s.reg.ReleaseAll(s.pend)
		slog.Debug("rate limit reached, fetch suppressed", "ceiling", s.limiter.Ceiling())
		s.suppressed++
		s.state = StateExhausted
		return false, nil
	}

	out, err := s.cur.FetchNext(s.handle.Handle(), s.pend)
	if err != nil {
		return false, err
	}
	switch out {
	case Cancelled:
		s.state = StateCancelled
		return false, nil
	case Exhausted:
		s.state = StateExhausted
		return false, nil
	}

	if err := s.bookmark.UpdateBatch(s.pend); err != nil {
		s.reg.ReleaseAll(s.pend)
		return false, err
	}
	s.limiter.Consume(s.pend.Len())
	s.state = StateActive
	return true, nil
}

// Pending returns the handles of the last fetched batch.
func (s *Subscription) Pending() []Handle { return s.pend.Handles() }

// Render produces the record for one pending handle.
func (s *Subscription) Render(h Handle) (Record, error) {
	return renderRecord(s.r, h, s.sessionHandle.Handle(), renderOptions{
		renderAsXML:        s.RenderAsXML,
		preserveQualifiers: s.PreserveQualifiers,
		preserveSID:        s.PreserveSID,
		expandInserts:      s.ExpandInserts,
		locale:             s.Locale,
	})
}

// ReleasePending closes the handles of the last fetched batch.
func (s *Subscription) ReleasePending() { s.reg.ReleaseAll(s.pend) }

// Each renders every currently available result and calls fn with it. It
// returns once a fetch reports nothing available. Each batch is released
// before the next fetch, including when rendering or fn fails.
func (s *Subscription) Each(fn func(Record) error) error {
	for {
		ok, err := s.Next()
		if err != nil || !ok {
			return err
		}
		if err := s.eachPending(fn); err != nil {
			return err
		}
	}
}

func (s *Subscription) eachPending(fn func(Record) error) error {
	defer s.ReleasePending()
	for _, h := range s.pend.Handles() {
		rec, err := s.Render(h)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until the OS signals new results or timeout elapses.
func (s *Subscription) Wait(timeout time.Duration) (bool, error) {
	if s.state == StateClosed {
		return false, ErrClosed
	}
	if s.signal == nil {
		return false, ErrNotSubscribed
	}
	ok, err := s.api.WaitSignal(s.signal.Handle(), uint32(timeout.Milliseconds()))
	if err != nil {
		return false, osError(s.api, "WaitForSingleObject", err)
	}
	return ok, nil
}

// Bookmark serializes the position of the most recently fetched result.
func (s *Subscription) Bookmark() (string, error) {
	if s.state == StateClosed {
		return "", ErrClosed
	}
	if s.bookmark == nil {
		return "", ErrNotSubscribed
	}
	return s.bookmark.Render()
}

// Cancel makes the in-flight and all later fetches report cancelled until
// the next Subscribe.
func (s *Subscription) Cancel() error {
	if s.state == StateClosed {
		return ErrClosed
	}
	s.cur.Cancel()
	s.state = StateCancelled
	if h := s.handle.Handle(); h != 0 {
		if err := s.api.Cancel(h); err != nil {
			return osError(s.api, "EvtCancel", err)
		}
	}
	return nil
}

// Close releases every handle held by the subscription. It is safe to call
// more than once.
func (s *Subscription) Close() error {
	s.reg.ReleaseAll(s.pend)
	s.handle.Release()
	s.signal.Release()
	s.sessionHandle.Release()
	if s.bookmark != nil {
		s.bookmark.Close()
	}
	s.state = StateClosed
	return nil
}
