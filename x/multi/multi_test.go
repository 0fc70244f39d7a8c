package multi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/memory"
)

func TestMultiDestination(t *testing.T) {
	a, b := make(chan string, 2), make(chan string, 2)
	md := NewMultiDestination[string]([]flow.Destination[string]{
		memory.NewMemDestination((chan<- string)(a)),
		memory.NewMemDestination((chan<- string)(b)),
	})

	acks := 0
	err := md.Send(context.Background(), func() { acks++ }, flow.Message[string]{Value: "x"}, flow.Message[string]{Value: "y"})
	require.NoError(t, err)
	assert.Equal(t, 1, acks, "acked once after both destinations")
	for _, c := range []chan string{a, b} {
		assert.Equal(t, "x", <-c)
		assert.Equal(t, "y", <-c)
	}
}

func TestMultiSource(t *testing.T) {
	a, b := make(chan string), make(chan string)
	ms := NewMultiSource[string]([]flow.Source[string]{
		memory.NewMemSource((<-chan string)(a)),
		memory.NewMemSource((<-chan string)(b)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- ms.Run(ctx) }()

	go func() { a <- "Security" }()
	go func() { b <- "System" }()

	var got []string
	for i := 0; i < 2; i++ {
		msg, _, err := ms.Recv(ctx)
		require.NoError(t, err)
		got = append(got, msg.Value)
	}
	assert.ElementsMatch(t, []string{"Security", "System"}, got)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
