// Package webhook posts batches of JSON encoded messages to an HTTP endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/runreveal/winevt/flow"
	batch "github.com/runreveal/winevt/x/batcher"
)

type Option func(*Webhook)

func WithURL(url string) Option {
	return func(w *Webhook) {
		w.url = url
	}
}

func WithHTTPClient(httpc *http.Client) Option {
	return func(w *Webhook) {
		w.httpc = httpc
	}
}

func WithBatchSize(size int) Option {
	return func(w *Webhook) {
		w.batchSize = size
	}
}

func WithFlushFrequency(t time.Duration) Option {
	return func(w *Webhook) {
		w.flushFreq = t
	}
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) Option {
	return func(w *Webhook) {
		w.headers = append(w.headers, [2]string{key, value})
	}
}

func WithMaxRetries(n int) Option {
	return func(w *Webhook) {
		w.maxRetries = n
	}
}

// Webhook is a batching destination. Each flush is one POST of a JSON array
// whose elements are the message values.
type Webhook struct {
	httpc   *http.Client
	batcher *batch.Destination[[]byte]

	url        string
	headers    [][2]string
	batchSize  int
	flushFreq  time.Duration
	maxRetries int
}

func New(opts ...Option) *Webhook {
	ret := &Webhook{
		httpc:      http.DefaultClient,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize <= 0 {
		ret.batchSize = 100
	}
	if ret.flushFreq <= 0 {
		ret.flushFreq = 15 * time.Second
	}

	ret.batcher = batch.NewDestination[[]byte](ret,
		batch.Raise[[]byte](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFreq),
		batch.FlushParallelism(2),
		batch.MaxRetries(ret.maxRetries),
		batch.InitialBackoff(500*time.Millisecond),
		batch.IsRetryable(retryable),
	)
	return ret
}

// retryable reports false for 4xx responses other than 429, which will not
// succeed on a second try.
func retryable(err error) bool {
	var se *requests.ResponseError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

func (w *Webhook) Run(ctx context.Context) error {
	if w.url == "" {
		return errors.New("missing webhook url")
	}
	return w.batcher.Run(ctx)
}

func (w *Webhook) Send(ctx context.Context, ack func(), msgs ...flow.Message[[]byte]) error {
	return w.batcher.Send(ctx, ack, msgs...)
}

func (w *Webhook) newReq() *requests.Builder {
	rb := requests.
		URL(w.url).
		Client(w.httpc).
		UserAgent("winevtd").
		Accept("application/json")
	for _, h := range w.headers {
		rb = rb.Header(h[0], h[1])
	}
	return rb
}

// Flush posts msgs as one JSON array.
func (w *Webhook) Flush(ctx context.Context, msgs []flow.Message[[]byte]) error {
	slog.Debug("sending batch to webhook", "count", len(msgs))

	body := make([]json.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		if !json.Valid(msg.Value) {
			slog.Error("dropping message that is not valid json", "key", msg.Key)
			continue
		}
		body = append(body, msg.Value)
	}

	err := w.newReq().BodyJSON(body).Fetch(ctx)
	if err != nil {
		slog.Error("error sending batch to webhook", "err", err)
		return err
	}
	return nil
}
