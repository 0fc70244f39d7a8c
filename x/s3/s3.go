// Package s3 writes batches of messages to S3 as gzipped newline delimited
// objects.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/klauspost/compress/gzip"
	"github.com/segmentio/ksuid"

	"github.com/runreveal/winevt/flow"
	batch "github.com/runreveal/winevt/x/batcher"
)

type Option func(*S3)

func WithBucketName(bucketName string) Option {
	return func(s *S3) {
		s.bucketName = bucketName
	}
}

func WithPathPrefix(pathPrefix string) Option {
	return func(s *S3) {
		s.pathPrefix = pathPrefix
	}
}

func WithBucketRegion(bucketRegion string) Option {
	return func(s *S3) {
		s.bucketRegion = bucketRegion
	}
}

func WithCustomEndpoint(customEndpoint string) Option {
	return func(s *S3) {
		s.customEndpoint = customEndpoint
	}
}

func WithAccessKeyID(accessKeyID string) Option {
	return func(s *S3) {
		s.accessKeyID = accessKeyID
	}
}

func WithSecretAccessKey(secretAccessKey string) Option {
	return func(s *S3) {
		s.secretAccessKey = secretAccessKey
	}
}

func WithBatchSize(batchSize int) Option {
	return func(s *S3) {
		s.batchSize = batchSize
	}
}

func WithFlushFrequency(d time.Duration) Option {
	return func(s *S3) {
		s.flushFreq = d
	}
}

// WithUploader replaces the uploader built from the AWS session.
func WithUploader(u s3manageriface.UploaderAPI) Option {
	return func(s *S3) {
		s.uploader = u
	}
}

type S3 struct {
	batcher  *batch.Destination[[]byte]
	uploader s3manageriface.UploaderAPI
	now      func() time.Time

	bucketName   string
	bucketRegion string
	pathPrefix   string

	customEndpoint  string
	accessKeyID     string
	secretAccessKey string

	batchSize int
	flushFreq time.Duration
}

func New(opts ...Option) *S3 {
	ret := &S3{now: time.Now}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFreq == 0 {
		ret.flushFreq = 5 * time.Second
	}
	ret.batcher = batch.NewDestination[[]byte](ret,
		batch.Raise[[]byte](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFreq),
		batch.MaxRetries(3),
		batch.InitialBackoff(time.Second),
	)
	return ret
}

func (s *S3) Run(ctx context.Context) error {
	if s.bucketName == "" {
		return errors.New("missing bucket name")
	}
	if s.uploader == nil {
		// Custom endpoints, static keys and regions are passed through as
		// given so S3 compatible stores like R2 work.
		config := &aws.Config{}
		if s.customEndpoint != "" {
			config.Endpoint = aws.String(s.customEndpoint)
		}
		if s.accessKeyID != "" && s.secretAccessKey != "" {
			config.Credentials = credentials.NewStaticCredentials(s.accessKeyID, s.secretAccessKey, "")
		}
		if s.bucketRegion != "" {
			config.Region = aws.String(s.bucketRegion)
		}
		sess, err := session.NewSession(config)
		if err != nil {
			return err
		}
		s.uploader = s3manager.NewUploader(sess)
	}

	return s.batcher.Run(ctx)
}

func (s *S3) Send(ctx context.Context, ack func(), msgs ...flow.Message[[]byte]) error {
	return s.batcher.Send(ctx, ack, msgs...)
}

// key names objects by hour so that a prefix listing finds a time range.
func (s *S3) key() string {
	now := s.now().UTC()
	return fmt.Sprintf("%s/%s/%s_%d.gz",
		s.pathPrefix,
		now.Format("2006/01/02/15"),
		ksuid.New().String(),
		now.Unix(),
	)
}

func encode(msgs []flow.Message[[]byte]) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for _, msg := range msgs {
		if _, err := zw.Write(msg.Value); err != nil {
			return nil, err
		}
		if _, err := zw.Write([]byte("\n")); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Flush uploads msgs as one object.
func (s *S3) Flush(ctx context.Context, msgs []flow.Message[[]byte]) error {
	body, err := encode(msgs)
	if err != nil {
		return err
	}
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:          aws.String(s.bucketName),
		Key:             aws.String(s.key()),
		Body:            bytes.NewReader(body),
		ContentEncoding: aws.String("gzip"),
		ContentType:     aws.String("application/x-ndjson"),
	})
	return err
}
