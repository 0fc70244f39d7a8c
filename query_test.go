package winevt_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/winevttest"
)

func seedChannel(api *winevttest.API, channel string, n int) {
	for i := 0; i < n; i++ {
		api.AddEvent(channel, winevttest.Event{
			EventID:  uint16(100 + i),
			Messages: map[uint32]string{0: "event %1"},
			Inserts:  []winevt.Variant{{Type: winevt.VarTypeUInt32, Value: uint64(i)}},
		})
	}
}

func TestQueryEach(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 25)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	assert.Equal(t, winevt.StateActive, q.State())
	q.ExpandInserts = true

	var recs []winevt.Record
	err = q.Each(func(r winevt.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 25)
	assert.Contains(t, recs[0].XML, "<EventID>100</EventID>")
	assert.Equal(t, "event 0", recs[0].Message)
	assert.Equal(t, []any{uint64(24)}, recs[24].Inserts)
	assert.Equal(t, winevt.StateExhausted, q.State())

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.Equal(t, winevt.StateClosed, q.State())
	assert.Equal(t, 0, api.OpenHandles())
	assert.Equal(t, q.Registry().Acquired(), q.Registry().Released())
}

func TestQuerySystemFields(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 1)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	defer q.Close()
	q.RenderAsXML = false

	err = q.Each(func(r winevt.Record) error {
		assert.Empty(t, r.XML)
		require.NotNil(t, r.System)
		assert.Equal(t, uint32(100), r.System.EventID)
		return nil
	})
	require.NoError(t, err)
}

func TestQueryFilter(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 5)

	q, err := winevt.NewQuery(api, "Application", "*[System[(EventID=102)]]")
	require.NoError(t, err)
	defer q.Close()

	n := 0
	require.NoError(t, q.Each(func(winevt.Record) error { n++; return nil }))
	assert.Equal(t, 1, n)
}

func TestQueryChannelNotFound(t *testing.T) {
	api := winevttest.New()
	_, err := winevt.NewQuery(api, "NoSuchChannel", "*")

	var cnf *winevt.ChannelNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "NoSuchChannel", cnf.Channel)
	var oe *winevt.OsResourceError
	assert.False(t, errors.As(err, &oe))
	assert.Equal(t, 0, api.OpenHandles())
}

func TestQueryInvalidQuery(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 1)
	_, err := winevt.NewQuery(api, "Application", "not a query")

	var oe *winevt.OsResourceError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, winevt.ErrorEvtInvalidQuery, oe.Code)
}

func TestQueryRenderFailureReleasesBatch(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 3)
	api.AddEvent("Application", winevttest.Event{RenderErr: winevt.ErrorInvalidData})
	seedChannel(api, "Application", 3)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)

	seen := 0
	err = q.Each(func(winevt.Record) error {
		seen++
		return nil
	})
	var re *winevt.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, seen)
	assert.Equal(t, 1, api.OpenHandles(), "only the query handle remains")
	assert.Equal(t, winevt.StateActive, q.State(), "query stays usable after a render failure")

	require.NoError(t, q.Close())
	assert.Equal(t, 0, api.OpenHandles())
	assert.Equal(t, q.Registry().Acquired(), q.Registry().Released())
}

func TestQueryCallbackErrorReleasesBatch(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 8)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	defer q.Close()

	stop := errors.New("stop")
	err = q.Each(func(winevt.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, api.OpenHandles())
}

func TestQuerySeek(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 10)

	q, err := winevt.NewQuery(api, "Application", "*", winevt.WithQueryBatchSize(1))
	require.NoError(t, err)
	defer q.Close()

	q.Offset = -2
	require.NoError(t, q.Seek(winevt.SeekRelativeToLast))
	ok, err := q.Next()
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := q.Render(q.Pending()[0])
	require.NoError(t, err)
	assert.Contains(t, rec.XML, "<EventRecordID>8</EventRecordID>")
	q.ReleasePending()

	q.Offset = 0
	require.NoError(t, q.Seek(winevt.SeekRelativeToFirst))
	ok, err = q.Next()
	require.NoError(t, err)
	require.True(t, ok)
	rec, err = q.Render(q.Pending()[0])
	require.NoError(t, err)
	assert.Contains(t, rec.XML, "<EventRecordID>1</EventRecordID>")
}

func TestQuerySeekBookmarkRoundTrip(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 10)

	// Read the first four records and remember where we stopped.
	q, err := winevt.NewQuery(api, "Application", "*", winevt.WithQueryBatchSize(4))
	require.NoError(t, err)
	bm, err := winevt.NewBookmark(api)
	require.NoError(t, err)
	ok, err := q.Next()
	require.NoError(t, err)
	require.True(t, ok)
	for _, h := range q.Pending() {
		require.NoError(t, bm.Update(h))
	}
	xml, err := bm.Render()
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, bm.Close())

	restored, err := winevt.BookmarkFromXML(api, xml)
	require.NoError(t, err)
	defer restored.Close()

	fresh, err := winevt.NewQuery(api, "Application", "*", winevt.WithQueryBatchSize(1))
	require.NoError(t, err)
	defer fresh.Close()
	fresh.Offset = 1
	require.NoError(t, fresh.SeekBookmark(restored))

	ok, err = fresh.Next()
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := fresh.Render(fresh.Pending()[0])
	require.NoError(t, err)
	assert.Contains(t, rec.XML, "<EventRecordID>5</EventRecordID>")
}

func TestQueryCancel(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 30)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	defer q.Close()

	n := 0
	err = q.Each(func(winevt.Record) error {
		n++
		if n == 5 {
			return q.Cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, n, "cancellation takes effect at the next fetch")
	assert.Equal(t, winevt.StateCancelled, q.State())

	ok, err := q.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, api.OpenHandles())
}

func TestQueryFetchTimeout(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 1)

	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	_, err = q.Next()
	require.NoError(t, err)
	assert.Equal(t, winevt.Infinite, api.NextTimeout)
	require.NoError(t, q.Close())

	q, err = winevt.NewQuery(api, "Application", "*", winevt.WithQueryFetchTimeout(250*time.Millisecond))
	require.NoError(t, err)
	defer q.Close()
	_, err = q.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(250), api.NextTimeout)
}

func TestQueryClosed(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 1)
	q, err := winevt.NewQuery(api, "Application", "*")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = q.Next()
	assert.ErrorIs(t, err, winevt.ErrClosed)
	assert.ErrorIs(t, q.Seek(winevt.SeekRelativeToFirst), winevt.ErrClosed)
	assert.ErrorIs(t, q.Cancel(), winevt.ErrClosed)
}

func TestQueryRemoteSession(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 1)

	s := &winevt.Session{Server: "dc01", Domain: "CORP", Username: "svc", Password: "pw", Auth: winevt.AuthKerberos}
	q, err := winevt.NewQuery(api, "Application", "*", winevt.WithQuerySession(s))
	require.NoError(t, err)
	require.Len(t, api.Logins, 1)
	assert.Equal(t, winevt.RemoteLogin{Server: "dc01", User: "svc", Domain: "CORP", Password: "pw", Flags: winevt.AuthKerberos}, api.Logins[0])
	require.NoError(t, q.Close())
	assert.Equal(t, 0, api.OpenHandles())

	api.SessionErr = winevt.Errno(1722)
	_, err = winevt.NewQuery(api, "Application", "*", winevt.WithQuerySession(s))
	var rce *winevt.RemoteConnectionError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "dc01", rce.Server)
	assert.Equal(t, winevt.Errno(1722), rce.Code)
}

func TestParseSeekFlag(t *testing.T) {
	tests := map[string]winevt.SeekFlag{
		"first":      winevt.SeekRelativeToFirst,
		"last":       winevt.SeekRelativeToLast,
		"current":    winevt.SeekRelativeToCurrent,
		"bookmark":   winevt.SeekRelativeToBookmark,
		"originmask": winevt.SeekOriginMask,
		"strict":     winevt.SeekStrict,
	}
	for in, want := range tests {
		got, err := winevt.ParseSeekFlag(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := winevt.ParseSeekFlag("middle")
	var ce *winevt.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "unknown seek flag: middle", ce.Error())
}
