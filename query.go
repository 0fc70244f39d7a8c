package winevt

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithQuerySession runs the query against a remote machine.
func WithQuerySession(s *Session) QueryOption {
	return func(q *Query) {
		q.session = s
	}
}

// WithQueryFlags overrides DefaultQueryFlags.
func WithQueryFlags(flags QueryFlag) QueryOption {
	return func(q *Query) {
		q.flags = flags
	}
}

// WithQueryBatchSize sets how many results are fetched at once.
func WithQueryBatchSize(n int) QueryOption {
	return func(q *Query) {
		q.batchSize = n
	}
}

// WithQueryFetchTimeout bounds each fetch. Exhaustion is reported when it
// elapses.
func WithQueryFetchTimeout(d time.Duration) QueryOption {
	return func(q *Query) {
		q.fetchTimeout = uint32(d.Milliseconds())
	}
}

// Query is a bounded, seekable result set.
type Query struct {
	api  API
	reg  *Registry
	r    *Renderer
	cur  *Cursor
	pend *Batch

	channel      string
	xpath        string
	flags        QueryFlag
	batchSize    int
	fetchTimeout uint32

	session       *Session
	sessionHandle *Guard
	handle        *Guard

	// Offset and Timeout are used by Seek.
	Offset  int64
	Timeout uint32

	RenderAsXML        bool
	PreserveQualifiers bool
	PreserveSID        bool
	ExpandInserts      bool
	Locale             Locale

	state State
}

// NewQuery evaluates xpath against channel (or a log file with
// QueryFilePath). A missing channel is reported as *ChannelNotFoundError.
func NewQuery(api API, channel, xpath string, opts ...QueryOption) (*Query, error) {
	reg := NewRegistry(api)
	q := &Query{
		api:          api,
		reg:          reg,
		r:            NewRenderer(reg),
		channel:      channel,
		xpath:        xpath,
		flags:        DefaultQueryFlags,
		batchSize:    MaxBatch,
		fetchTimeout: Infinite,
		RenderAsXML:  true,
		Locale:       NeutralLocale,
	}
	for _, o := range opts {
		o(q)
	}
	q.pend = NewBatch(q.batchSize)
	q.cur = NewCursor(reg, q.fetchTimeout)

	var err error
	q.sessionHandle, err = q.session.open(reg)
	if err != nil {
		return nil, err
	}

	q.handle, err = reg.Acquire(KindQuery, func() (Handle, error) {
		return api.Query(q.sessionHandle.Handle(), channel, xpath, q.flags)
	})
	if err != nil {
		q.sessionHandle.Release()
		var oe *OsResourceError
		if errors.As(err, &oe) && (oe.Code == ErrorEvtChannelNotFound || oe.Code == ErrorFileNotFound) {
			return nil, &ChannelNotFoundError{Channel: channel}
		}
		return nil, err
	}
	q.state = StateActive
	return q, nil
}

// SetLocale selects the message locale by code.
func (q *Query) SetLocale(code string) error {
	l, err := LookupLocale(code)
	if err != nil {
		return err
	}
	q.Locale = l
	return nil
}

func (q *Query) State() State { return q.state }

// Registry exposes handle accounting for the query.
func (q *Query) Registry() *Registry { return q.reg }

// Next fetches the next batch. It reports false when the query is
// exhausted or cancelled.
func (q *Query) Next() (bool, error) {
	if q.state == StateClosed {
		return false, ErrClosed
	}
	out, err := q.cur.FetchNext(q.handle.Handle(), q.pend)
	if err != nil {
		return false, err
	}
	switch out {
	case Ready:
		q.state = StateActive
		return true, nil
	case Cancelled:
		q.state = StateCancelled
	default:
		q.state = StateExhausted
	}
	return false, nil
}

// Pending returns the handles of the last fetched batch.
func (q *Query) Pending() []Handle { return q.pend.Handles() }

// Render produces the record for one pending handle.
func (q *Query) Render(h Handle) (Record, error) {
	return renderRecord(q.r, h, q.sessionHandle.Handle(), q.renderOptions())
}

// ReleasePending closes the handles of the last fetched batch.
func (q *Query) ReleasePending() { q.reg.ReleaseAll(q.pend) }

// Each renders every remaining result and calls fn with it. Each batch is
// released before the next fetch, including when rendering or fn fails.
func (q *Query) Each(fn func(Record) error) error {
	for {
		ok, err := q.Next()
		if err != nil || !ok {
			return err
		}
		if err := q.eachPending(fn); err != nil {
			return err
		}
	}
}

func (q *Query) eachPending(fn func(Record) error) error {
	defer q.ReleasePending()
	for _, h := range q.pend.Handles() {
		rec, err := q.Render(h)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Seek moves the query cursor by Offset relative to flag.
func (q *Query) Seek(flag SeekFlag) error {
	return q.seek(0, flag)
}

// SeekBookmark moves the query cursor by Offset relative to b.
func (q *Query) SeekBookmark(b *Bookmark) error {
	return q.seek(b.Handle(), SeekRelativeToBookmark)
}

func (q *Query) seek(bookmark Handle, flag SeekFlag) error {
	if q.state == StateClosed {
		return ErrClosed
	}
	if err := q.api.Seek(q.handle.Handle(), q.Offset, bookmark, q.Timeout, flag); err != nil {
		return osError(q.api, "EvtSeek", err)
	}
	if q.state == StateExhausted {
		q.state = StateActive
	}
	return nil
}

// Cancel makes the in-flight and all later fetches report cancelled.
func (q *Query) Cancel() error {
	if q.state == StateClosed {
		return ErrClosed
	}
	q.cur.Cancel()
	q.state = StateCancelled
	if err := q.api.Cancel(q.handle.Handle()); err != nil {
		return osError(q.api, "EvtCancel", err)
	}
	return nil
}

// Close releases every handle held by the query. It is safe to call more
// than once.
func (q *Query) Close() error {
	q.reg.ReleaseAll(q.pend)
	q.handle.Release()
	q.sessionHandle.Release()
	q.state = StateClosed
	return nil
}

func (q *Query) renderOptions() renderOptions {
	return renderOptions{
		renderAsXML:        q.RenderAsXML,
		preserveQualifiers: q.PreserveQualifiers,
		preserveSID:        q.PreserveSID,
		expandInserts:      q.ExpandInserts,
		locale:             q.Locale,
	}
}

// ParseSeekFlag parses first, last, current, bookmark, originmask or
// strict.
func ParseSeekFlag(s string) (SeekFlag, error) {
	switch strings.ToLower(s) {
	case "first":
		return SeekRelativeToFirst, nil
	case "last":
		return SeekRelativeToLast, nil
	case "current":
		return SeekRelativeToCurrent, nil
	case "bookmark":
		return SeekRelativeToBookmark, nil
	case "originmask":
		return SeekOriginMask, nil
	case "strict":
		return SeekStrict, nil
	}
	return 0, &ConfigurationError{Field: "seek flag", Value: s}
}
