package winevt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/winevttest"
)

func openQuery(t *testing.T, api *winevttest.API, reg *winevt.Registry, channel string) *winevt.Guard {
	t.Helper()
	g, err := reg.Acquire(winevt.KindQuery, func() (winevt.Handle, error) {
		return api.Query(0, channel, "*", winevt.DefaultQueryFlags)
	})
	require.NoError(t, err)
	return g
}

func TestFetchNextBatches(t *testing.T) {
	api := winevttest.New()
	for i := 0; i < 12; i++ {
		api.AddEvent("System", winevttest.Event{EventID: uint16(i)})
	}
	reg := winevt.NewRegistry(api)
	q := openQuery(t, api, reg, "System")
	defer q.Release()

	cur := winevt.NewCursor(reg, winevt.Infinite)
	b := winevt.NewBatch(winevt.MaxBatch)

	out, err := cur.FetchNext(q.Handle(), b)
	require.NoError(t, err)
	assert.Equal(t, winevt.Ready, out)
	assert.Equal(t, 10, b.Len())

	out, err = cur.FetchNext(q.Handle(), b)
	require.NoError(t, err)
	assert.Equal(t, winevt.Ready, out)
	assert.Equal(t, 2, b.Len(), "previous batch released and replaced")

	out, err = cur.FetchNext(q.Handle(), b)
	require.NoError(t, err)
	assert.Equal(t, winevt.Exhausted, out)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, reg.Live())
}

func TestFetchNextOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		code    winevt.Errno
		want    winevt.Outcome
		wantErr bool
	}{
		{name: "NoMoreItems", code: winevt.ErrorNoMoreItems, want: winevt.Exhausted},
		{name: "Timeout", code: winevt.ErrorTimeout, want: winevt.Exhausted},
		{name: "Cancelled", code: winevt.ErrorCancelled, want: winevt.Cancelled},
		{name: "Other", code: winevt.ErrorInvalidData, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := winevttest.New()
			api.AddEvent("System", winevttest.Event{})
			reg := winevt.NewRegistry(api)
			q := openQuery(t, api, reg, "System")
			defer q.Release()

			api.NextErr = test.code
			out, err := winevt.NewCursor(reg, winevt.Infinite).FetchNext(q.Handle(), winevt.NewBatch(10))
			if test.wantErr {
				var oe *winevt.OsResourceError
				require.ErrorAs(t, err, &oe)
				assert.Equal(t, test.code, oe.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, out)
		})
	}
}

func TestFetchNextAfterCancel(t *testing.T) {
	api := winevttest.New()
	api.AddEvent("System", winevttest.Event{})
	reg := winevt.NewRegistry(api)
	q := openQuery(t, api, reg, "System")
	defer q.Release()

	cur := winevt.NewCursor(reg, winevt.Infinite)
	cur.Cancel()
	calls := api.NextCalls
	out, err := cur.FetchNext(q.Handle(), winevt.NewBatch(10))
	require.NoError(t, err)
	assert.Equal(t, winevt.Cancelled, out)
	assert.Equal(t, calls, api.NextCalls, "cancelled cursor does not reach the OS")
}

func TestBatchCapacityIsBounded(t *testing.T) {
	assert.Equal(t, winevt.MaxBatch, winevt.NewBatch(0).Cap())
	assert.Equal(t, winevt.MaxBatch, winevt.NewBatch(50).Cap())
	assert.Equal(t, 3, winevt.NewBatch(3).Cap())
}
