package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runreveal/winevt/flow"
)

func TestArgs(t *testing.T) {
	d := NewDestination(WithTopic("events"), WithMaxLen(1000))
	defer d.Close()

	a := d.args(flow.Message[[]byte]{Key: "2Y6V", Value: []byte(`{"EventID":4624}`)})
	assert.Equal(t, "events", a.Stream)
	assert.Equal(t, int64(1000), a.MaxLen)
	assert.True(t, a.Approx)
	assert.Equal(t, binMarshaler(`{"EventID":4624}`), a.Values.(map[string]any)["msg"])
	assert.Equal(t, "2Y6V", a.Values.(map[string]any)["key"])

	a = d.args(flow.Message[[]byte]{Topic: "security", Value: []byte("x")})
	assert.Equal(t, "security", a.Stream)
	assert.NotContains(t, a.Values.(map[string]any), "key")
}

func TestSendUnreachableDoesNotAck(t *testing.T) {
	d := NewDestination(WithAddr("127.0.0.1:1"), WithMaxRetries(-1))
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acked := false
	err := d.Send(ctx, func() { acked = true }, flow.Message[[]byte]{Value: []byte("x")})
	assert.Error(t, err)
	assert.False(t, acked)
}
