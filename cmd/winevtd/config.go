package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/runreveal/lib/loader"

	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/checkpoint"
	"github.com/runreveal/winevt/x/mqtt"
	"github.com/runreveal/winevt/x/printer"
	"github.com/runreveal/winevt/x/redis"
	"github.com/runreveal/winevt/x/s3"
	"github.com/runreveal/winevt/x/webhook"
)

func init() {
	loader.Register("printer", func() loader.Builder[flow.Destination[[]byte]] {
		return &PrinterConfig{}
	})
	loader.Register("s3", func() loader.Builder[flow.Destination[[]byte]] {
		return &S3Config{}
	})
	loader.Register("mqtt", func() loader.Builder[flow.Destination[[]byte]] {
		return &MQTTConfig{}
	})
	loader.Register("redis", func() loader.Builder[flow.Destination[[]byte]] {
		return &RedisConfig{}
	})
	loader.Register("webhook", func() loader.Builder[flow.Destination[[]byte]] {
		return &WebhookConfig{}
	})

	// Names share one registry with the destinations above.
	loader.Register("checkpoint-file", func() loader.Builder[checkpoint.Store] {
		return &FileCheckpointConfig{}
	})
	loader.Register("checkpoint-redis", func() loader.Builder[checkpoint.Store] {
		return &RedisCheckpointConfig{}
	})
}

type PrinterConfig struct {
	Delim  string `json:"delim"`
	Indent string `json:"indent"`
	Topic  bool   `json:"topic"`
}

func (c *PrinterConfig) Configure() (flow.Destination[[]byte], error) {
	slog.Info("configuring printer")
	var opts []printer.Option
	if c.Delim != "" {
		opts = append(opts, printer.WithDelim([]byte(c.Delim)))
	}
	if c.Indent != "" {
		opts = append(opts, printer.WithIndent(c.Indent))
	}
	opts = append(opts, printer.WithTopic(c.Topic))
	return printer.NewPrinter(os.Stdout, opts...), nil
}

type S3Config struct {
	BucketName   string `json:"bucketName"`
	PathPrefix   string `json:"pathPrefix"`
	BucketRegion string `json:"bucketRegion"`

	CustomEndpoint  string `json:"customEndpoint"`
	AccessKeyID     string `json:"accessKeyID"`
	AccessSecretKey string `json:"accessSecretKey"`

	BatchSize      int    `json:"batchSize"`
	FlushFrequency string `json:"flushFrequency"`
}

func (c *S3Config) Configure() (flow.Destination[[]byte], error) {
	slog.Info("configuring s3")
	if c.BucketName == "" {
		return nil, errors.New("s3: missing bucketName")
	}
	opts := []s3.Option{
		s3.WithBucketName(c.BucketName),
		s3.WithBucketRegion(c.BucketRegion),
		s3.WithPathPrefix(c.PathPrefix),
		s3.WithCustomEndpoint(c.CustomEndpoint),
		s3.WithAccessKeyID(c.AccessKeyID),
		s3.WithSecretAccessKey(c.AccessSecretKey),
		s3.WithBatchSize(c.BatchSize),
	}
	if c.FlushFrequency != "" {
		d, err := time.ParseDuration(c.FlushFrequency)
		if err != nil {
			return nil, err
		}
		opts = append(opts, s3.WithFlushFrequency(d))
	}
	return s3.New(opts...), nil
}

type MQTTConfig struct {
	Broker    string `json:"broker"`
	ClientID  string `json:"clientID"`
	Topic     string `json:"topic"`
	UserName  string `json:"userName"`
	Password  string `json:"password"`
	QOS       byte   `json:"qos"`
	Retained  bool   `json:"retained"`
	KeepAlive string `json:"keepAlive"`
}

func (c *MQTTConfig) Configure() (flow.Destination[[]byte], error) {
	slog.Info("configuring mqtt", "broker", c.Broker)
	opts := []mqtt.OptFunc{
		mqtt.WithBroker(c.Broker),
		mqtt.WithClientID(c.ClientID),
		mqtt.WithTopic(c.Topic),
		mqtt.WithUserName(c.UserName),
		mqtt.WithPassword(c.Password),
		mqtt.WithQOS(c.QOS),
		mqtt.WithRetained(c.Retained),
	}
	if c.KeepAlive != "" {
		d, err := time.ParseDuration(c.KeepAlive)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mqtt.WithKeepAlive(d))
	}
	return mqtt.NewDestination(opts...)
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Topic    string `json:"topic"`
	MaxLen   int64  `json:"maxLen"`
}

func (c *RedisConfig) Configure() (flow.Destination[[]byte], error) {
	slog.Info("configuring redis", "addr", c.Addr)
	if c.Addr == "" {
		return nil, errors.New("redis: missing addr")
	}
	opts := []redis.Option{
		redis.WithAddr(c.Addr),
		redis.WithUsername(c.Username),
		redis.WithPassword(c.Password),
		redis.WithDB(c.DB),
		redis.WithMaxLen(c.MaxLen),
	}
	if c.Topic != "" {
		opts = append(opts, redis.WithTopic(c.Topic))
	}
	return redis.NewDestination(opts...), nil
}

type WebhookConfig struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	BatchSize      int               `json:"batchSize"`
	FlushFrequency string            `json:"flushFrequency"`
	MaxRetries     *int              `json:"maxRetries"`
}

func (c *WebhookConfig) Configure() (flow.Destination[[]byte], error) {
	slog.Info("configuring webhook")
	if c.URL == "" {
		return nil, errors.New("webhook: missing url")
	}
	opts := []webhook.Option{
		webhook.WithURL(c.URL),
		webhook.WithBatchSize(c.BatchSize),
	}
	for k, v := range c.Headers {
		opts = append(opts, webhook.WithHeader(k, v))
	}
	if c.MaxRetries != nil {
		opts = append(opts, webhook.WithMaxRetries(*c.MaxRetries))
	}
	if c.FlushFrequency != "" {
		d, err := time.ParseDuration(c.FlushFrequency)
		if err != nil {
			return nil, err
		}
		opts = append(opts, webhook.WithFlushFrequency(d))
	}
	return webhook.New(opts...), nil
}

type FileCheckpointConfig struct {
	Dir string `json:"dir"`
}

func (c *FileCheckpointConfig) Configure() (checkpoint.Store, error) {
	return checkpoint.NewFile(c.Dir)
}

type RedisCheckpointConfig struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

func (c *RedisCheckpointConfig) Configure() (checkpoint.Store, error) {
	if c.Addr == "" {
		return nil, errors.New("redis checkpoint: missing addr")
	}
	var opts []checkpoint.RedisOption
	if c.Prefix != "" {
		opts = append(opts, checkpoint.WithPrefix(c.Prefix))
	}
	return checkpoint.NewRedis(&goredis.Options{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	}, opts...), nil
}
