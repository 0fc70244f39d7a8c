package main

import (
	"log/slog"

	"github.com/runreveal/lib/loader"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/flow"
	"github.com/runreveal/winevt/x/checkpoint"
	"github.com/runreveal/winevt/x/eventlog"
)

func init() {
	loader.Register("eventlog", func() loader.Builder[flow.Source[eventlog.Event]] {
		return &EventLogConfig{}
	})
}

type SessionConfig struct {
	Server   string `json:"server"`
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     string `json:"auth"`
}

func (c *SessionConfig) session() (*winevt.Session, error) {
	if c == nil || c.Server == "" {
		return nil, nil
	}
	auth, err := winevt.ParseAuthFlag(c.Auth)
	if err != nil {
		return nil, err
	}
	return &winevt.Session{
		Server:   c.Server,
		Domain:   c.Domain,
		Username: c.Username,
		Password: c.Password,
		Auth:     auth,
	}, nil
}

type EventLogConfig struct {
	Channel       string         `json:"channel"`
	Query         string         `json:"query"`
	Tail          bool           `json:"tail"`
	RateLimit     int            `json:"rateLimit"`
	BatchSize     int            `json:"batchSize"`
	Locale        string         `json:"locale"`
	SystemOnly    bool           `json:"systemOnly"`
	ExpandInserts bool           `json:"expandInserts"`
	Remote        *SessionConfig `json:"remote"`

	Checkpoint    *loader.Loader[checkpoint.Store] `json:"checkpoint"`
	CheckpointKey string                           `json:"checkpointKey"`
}

func (c *EventLogConfig) options() ([]eventlog.Option, error) {
	opts := []eventlog.Option{
		eventlog.WithChannel(c.Channel),
		eventlog.WithTail(c.Tail),
		eventlog.WithRenderXML(!c.SystemOnly),
		eventlog.WithExpandInserts(c.ExpandInserts),
	}
	if c.Query != "" {
		opts = append(opts, eventlog.WithQuery(c.Query))
	}
	if c.RateLimit != 0 {
		opts = append(opts, eventlog.WithRateLimit(c.RateLimit))
	}
	if c.BatchSize != 0 {
		opts = append(opts, eventlog.WithBatchSize(c.BatchSize))
	}
	if c.Locale != "" {
		opts = append(opts, eventlog.WithLocale(c.Locale))
	}
	sess, err := c.Remote.session()
	if err != nil {
		return nil, err
	}
	if sess != nil {
		opts = append(opts, eventlog.WithSession(sess))
	}
	if c.Checkpoint != nil {
		store, err := c.Checkpoint.Configure()
		if err != nil {
			return nil, err
		}
		opts = append(opts, eventlog.WithCheckpoint(store, c.CheckpointKey))
	} else {
		slog.Warn("no checkpoint configured, position is lost on restart", "channel", c.Channel)
	}
	return opts, nil
}

func (c *EventLogConfig) Configure() (flow.Source[eventlog.Event], error) {
	slog.Info("configuring eventlog", "channel", c.Channel)
	opts, err := c.options()
	if err != nil {
		return nil, err
	}
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	return eventlog.New(api, opts...)
}
