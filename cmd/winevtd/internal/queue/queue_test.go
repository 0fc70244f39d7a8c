package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/winevttest"
	"github.com/runreveal/winevt/x/eventlog"
	"github.com/runreveal/winevt/x/memory"
)

func TestValidate(t *testing.T) {
	q := New()
	assert.ErrorIs(t, q.Validate(), ErrNoSources)
	assert.ErrorIs(t, q.Run(context.Background()), ErrNoSources)

	q = New(WithSources(map[string]Source{"in": {Name: "in", Source: memory.NewMemSource(make(<-chan eventlog.Event))}}))
	assert.ErrorIs(t, q.Validate(), ErrNoDestinations)
}

func TestEncode(t *testing.T) {
	out, err := Encode(context.Background(), flow.Message[eventlog.Event]{
		Key:   "2Y6VQ",
		Topic: "Security",
		Value: eventlog.Event{Channel: "Security", Message: "An account was logged on."},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2Y6VQ", out[0].Key)
	assert.Equal(t, "Security", out[0].Topic)
	assert.JSONEq(t, `{"channel":"Security","message":"An account was logged on."}`, string(out[0].Value))
}

func TestQueueForwardsEventLog(t *testing.T) {
	api := winevttest.New()
	for i := 0; i < 3; i++ {
		api.AddEvent("Application", winevttest.Event{EventID: uint16(1000 + i)})
	}
	src, err := eventlog.New(api, eventlog.WithChannel("Application"), eventlog.WithWaitTimeout(10*time.Millisecond))
	require.NoError(t, err)

	out := make(chan []byte, 3)
	q := New(
		WithSources(map[string]Source{"app": {Name: "app", Source: src}}),
		WithDestinations(map[string]Destination{"mem": {Name: "mem", Destination: memory.NewMemDestination((chan<- []byte)(out))}}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	for i := 0; i < 3; i++ {
		var ev struct {
			Channel string `json:"channel"`
			Event   struct {
				System struct {
					EventID string `json:"eventId"`
				} `json:"system"`
			} `json:"event"`
		}
		select {
		case bts := <-out:
			require.NoError(t, json.Unmarshal(bts, &ev))
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
		assert.Equal(t, "Application", ev.Channel)
		assert.Equal(t, []string{"1000", "1001", "1002"}[i], ev.Event.System.EventID)
	}

	cancel()
	<-errc
}
