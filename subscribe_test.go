package winevt_test

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/winevttest"
)

func drain(t *testing.T, s *winevt.Subscription) []winevt.Record {
	t.Helper()
	var recs []winevt.Record
	require.NoError(t, s.Each(func(r winevt.Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func TestSubscriptionOldest(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 12)

	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	assert.Equal(t, winevt.StateCreated, s.State())
	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Equal(t, winevt.StateActive, s.State())

	recs := drain(t, s)
	assert.Len(t, recs, 12)
	assert.Equal(t, winevt.StateExhausted, s.State())

	xml, err := s.Bookmark()
	require.NoError(t, err)
	assert.Contains(t, xml, "RecordId='12'")

	api.AddEvent("Security", winevttest.Event{EventID: 4624})
	ok, err := s.Wait(time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	recs = drain(t, s)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].XML, "<EventID>4624</EventID>")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, api.OpenHandles())
	assert.Equal(t, s.Registry().Acquired(), s.Registry().Released())
}

func TestSubscriptionTail(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 5)

	s, err := winevt.NewSubscription(api, winevt.WithTail(true))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Subscribe("Security", "*", nil))

	assert.Empty(t, drain(t, s))
	seedChannel(api, "Security", 2)
	assert.Len(t, drain(t, s), 2)
}

func TestSubscriptionResumeFromBookmark(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 6)

	first, err := winevt.NewSubscription(api, winevt.WithSubscriptionBatchSize(4))
	require.NoError(t, err)
	require.NoError(t, first.Subscribe("Security", "*", nil))
	ok, err := first.Next()
	require.NoError(t, err)
	require.True(t, ok)
	first.ReleasePending()
	xml, err := first.Bookmark()
	require.NoError(t, err)
	require.NoError(t, first.Close())

	bm, err := winevt.BookmarkFromXML(api, xml)
	require.NoError(t, err)
	defer bm.Close()

	second, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Subscribe("Security", "*", bm))

	recs := drain(t, second)
	require.Len(t, recs, 2)
	assert.Contains(t, recs[0].XML, "<EventRecordID>5</EventRecordID>")

	// The caller's bookmark is left where it was.
	orig, err := bm.Render()
	require.NoError(t, err)
	assert.Equal(t, xml, orig)
}

func TestSubscriptionBookmarkIsMonotonic(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 25)

	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Subscribe("Security", "*", nil))

	want := []string{"RecordId='10'", "RecordId='20'", "RecordId='25'"}
	for _, w := range want {
		ok, err := s.Next()
		require.NoError(t, err)
		require.True(t, ok)
		s.ReleasePending()
		xml, err := s.Bookmark()
		require.NoError(t, err)
		assert.Contains(t, xml, w)
	}

	ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	a, err := s.Bookmark()
	require.NoError(t, err)
	b, err := s.Bookmark()
	require.NoError(t, err)
	assert.Equal(t, a, b, "an empty fetch leaves the bookmark alone")
	assert.Contains(t, a, "RecordId='25'")
}

func TestSubscriptionRateLimit(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 15)
	clk := testclock.NewClock(time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC))

	s, err := winevt.NewSubscription(api, winevt.WithRateLimit(10), winevt.WithClock(clk))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 10, s.RateLimit())
	require.NoError(t, s.Subscribe("Security", "*", nil))

	assert.Len(t, drain(t, s), 10)
	calls := api.NextCalls
	ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, api.NextCalls, "suppressed fetch does not reach the OS")
	assert.Equal(t, uint64(2), s.Suppressed(), "the drain and the explicit fetch were both suppressed")
	assert.Equal(t, winevt.StateExhausted, s.State())

	clk.Advance(time.Second)
	assert.Len(t, drain(t, s), 5)
}

func TestSubscriptionInvalidRateLimit(t *testing.T) {
	_, err := winevt.NewSubscription(winevttest.New(), winevt.WithRateLimit(15))
	var ce *winevt.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "rate limit", ce.Field)
}

func TestSubscriptionNotSubscribed(t *testing.T) {
	api := winevttest.New()
	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	assert.ErrorIs(t, err, winevt.ErrNotSubscribed)
	_, err = s.Bookmark()
	assert.ErrorIs(t, err, winevt.ErrNotSubscribed)
	_, err = s.Wait(time.Millisecond)
	assert.ErrorIs(t, err, winevt.ErrNotSubscribed)
}

func TestSubscriptionChannelNotFound(t *testing.T) {
	api := winevttest.New()
	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)

	err = s.Subscribe("Missing", "*", nil)
	var cnf *winevt.ChannelNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "Missing", cnf.Channel)

	require.NoError(t, s.Close())
	assert.Equal(t, 0, api.OpenHandles())
}

func TestSubscriptionResubscribe(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 3)
	seedChannel(api, "System", 4)

	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Len(t, drain(t, s), 3)
	live := api.OpenHandles()

	require.NoError(t, s.Subscribe("System", "*", nil))
	assert.Equal(t, live, api.OpenHandles(), "old subscription and bookmark released")
	recs := drain(t, s)
	require.Len(t, recs, 4)
	assert.Contains(t, recs[0].XML, "<Channel>System</Channel>")
}

func TestSubscriptionFailedResubscribe(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 2)

	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Len(t, drain(t, s), 2)

	var cnf *winevt.ChannelNotFoundError
	require.ErrorAs(t, s.Subscribe("Missing", "*", nil), &cnf)
	assert.Equal(t, winevt.StateCreated, s.State())
	_, err = s.Next()
	assert.ErrorIs(t, err, winevt.ErrNotSubscribed)

	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Equal(t, winevt.StateActive, s.State())
	assert.Len(t, drain(t, s), 2)
}

func TestSubscriptionCancel(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 3)

	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Subscribe("Security", "*", nil))

	require.NoError(t, s.Cancel())
	ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, winevt.StateCancelled, s.State())

	// A new Subscribe clears the cancellation.
	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Len(t, drain(t, s), 3)
}

func TestSubscriptionClosed(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 1)
	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe("Security", "*", nil))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Subscribe("Security", "*", nil), winevt.ErrClosed)
	_, err = s.Next()
	assert.ErrorIs(t, err, winevt.ErrClosed)
	_, err = s.Bookmark()
	assert.ErrorIs(t, err, winevt.ErrClosed)
	assert.ErrorIs(t, s.Cancel(), winevt.ErrClosed)
}

func TestSubscriptionRemoteSession(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Security", 2)
	sess := &winevt.Session{Server: "dc01", Username: "svc", Auth: winevt.AuthNTLM}

	s, err := winevt.NewSubscription(api, winevt.WithSubscriptionSession(sess))
	require.NoError(t, err)
	require.NoError(t, s.Subscribe("Security", "*", nil))
	require.NoError(t, s.Subscribe("Security", "*", nil))
	assert.Len(t, api.Logins, 1, "the session is opened once")
	assert.Len(t, drain(t, s), 2)
	require.NoError(t, s.Close())
	assert.Equal(t, 0, api.OpenHandles())

	api.SessionErr = winevt.Errno(5)
	s, err = winevt.NewSubscription(api, winevt.WithSubscriptionSession(sess))
	require.NoError(t, err)
	defer s.Close()
	err = s.Subscribe("Security", "*", nil)
	var rce *winevt.RemoteConnectionError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "dc01", rce.Server)
}

func TestSubscriptionLocale(t *testing.T) {
	api := winevttest.New()
	s, err := winevt.NewSubscription(api)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetLocale("de_DE"))
	assert.Equal(t, "de_DE", s.Locale.Code)
	var ce *winevt.ConfigurationError
	assert.ErrorAs(t, s.SetLocale("xx_XX"), &ce)
	assert.Equal(t, "de_DE", s.Locale.Code)
}
