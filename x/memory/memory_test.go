package memory_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runreveal/lib/await"
	"github.com/stretchr/testify/assert"

	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/memory"
)

func TestRoundTrip(t *testing.T) {
	schan := make(chan []byte)
	src := memory.NewMemSource((<-chan []byte)(schan))
	dst := memory.NewMemDestination[[]byte]((chan<- []byte)(schan))

	want := make([][]byte, 25)
	seen := make([]bool, 25)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range want {
		want[i] = make([]byte, 20)
		_, err := rng.Read(want[i])
		assert.NoError(t, err)
	}

	wait := await.New()
	wait.Add(await.RunFunc(func(ctx context.Context) error {
		for count := 0; count < len(want); count++ {
			msg, ack, err := src.Recv(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			assert.NoError(t, err)
			flow.Ack(ack)
			mark(t, msg.Value, want, seen)
		}
		return nil
	}))

	var acks atomic.Int32
	wait.Add(await.RunFunc(func(ctx context.Context) error {
		for i := range want {
			toSend := make([]byte, len(want[i]))
			copy(toSend, want[i])
			err := dst.Send(ctx, func() { acks.Add(1) }, flow.Message[[]byte]{Value: toSend})
			if !errors.Is(err, context.Canceled) {
				assert.NoError(t, err)
			}
		}
		<-ctx.Done()
		return nil
	}))

	ctx, cncl := context.WithTimeout(context.Background(), 5*time.Second)
	defer cncl()
	assert.NoError(t, wait.Run(ctx))

	for i := range seen {
		assert.True(t, seen[i], "missing message %d", i)
	}
	assert.Eventually(t, func() bool { return int(acks.Load()) == len(want) }, time.Second, 10*time.Millisecond)
}

func TestSendCancelled(t *testing.T) {
	dst := memory.NewMemDestination[string](make(chan string))
	ctx, cncl := context.WithCancel(context.Background())
	cncl()

	acked := false
	err := dst.Send(ctx, func() { acked = true }, flow.Message[string]{Value: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, acked)
}

func mark(t *testing.T, actual []byte, sent [][]byte, seen []bool) {
	t.Helper()
	for i, want := range sent {
		if bytes.Equal(actual, want) {
			assert.False(t, seen[i], "duplicate message")
			seen[i] = true
			return
		}
	}
	t.Errorf("unexpected message %x", actual)
}
