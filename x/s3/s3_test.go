package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt/flow"
)

type fakeUploader struct {
	mu     sync.Mutex
	inputs []*s3manager.UploadInput
	bodies [][]byte
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3manager.UploadOutput{}, nil
}

func gunzip(t *testing.T, b []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func TestFlush(t *testing.T) {
	up := &fakeUploader{}
	s := New(WithBucketName("logs"), WithPathPrefix("winevt"), WithUploader(up))
	s.now = func() time.Time { return time.Date(2023, 11, 1, 13, 4, 5, 0, time.UTC) }

	err := s.Flush(context.Background(), []flow.Message[[]byte]{
		{Value: []byte(`{"EventID":1}`)},
		{Value: []byte(`{"EventID":2}`)},
	})
	require.NoError(t, err)
	require.Len(t, up.inputs, 1)
	assert.Equal(t, "logs", aws.StringValue(up.inputs[0].Bucket))
	key := aws.StringValue(up.inputs[0].Key)
	assert.True(t, strings.HasPrefix(key, "winevt/2023/11/01/13/"), key)
	assert.True(t, strings.HasSuffix(key, "_1698843845.gz"), key)
	assert.Equal(t, "{\"EventID\":1}\n{\"EventID\":2}\n", gunzip(t, up.bodies[0]))
}

func TestRunRequiresBucket(t *testing.T) {
	assert.EqualError(t, New().Run(context.Background()), "missing bucket name")
}

func TestSendBatches(t *testing.T) {
	up := &fakeUploader{}
	s := New(WithBucketName("logs"), WithUploader(up), WithBatchSize(2), WithFlushFrequency(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	done := make(chan struct{})
	require.NoError(t, s.Send(ctx, func() { close(done) }, flow.Message[[]byte]{Value: []byte("a")}, flow.Message[[]byte]{Value: []byte("b")}))
	<-done

	up.mu.Lock()
	require.Len(t, up.bodies, 1)
	assert.Equal(t, "a\nb\n", gunzip(t, up.bodies[0]))
	up.mu.Unlock()

	cancel()
	assert.NoError(t, <-errc)
}
