// Package mqtt publishes messages to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/runreveal/winevt/flow"
)

type OptFunc func(*Opts)

type Opts struct {
	broker   string
	clientID string
	topic    string

	userName string
	password string

	qos       byte
	retained  bool
	keepAlive time.Duration
}

func WithBroker(broker string) OptFunc {
	return func(opts *Opts) {
		opts.broker = broker
	}
}

func WithClientID(clientID string) OptFunc {
	return func(opts *Opts) {
		opts.clientID = clientID
	}
}

// WithTopic sets the topic events are published to. Messages that carry
// their own Topic override it.
func WithTopic(topic string) OptFunc {
	return func(opts *Opts) {
		if topic != "" {
			opts.topic = topic
		}
	}
}

func WithKeepAlive(keepAlive time.Duration) OptFunc {
	return func(opts *Opts) {
		opts.keepAlive = keepAlive
	}
}

func WithQOS(qos byte) OptFunc {
	return func(opts *Opts) {
		opts.qos = qos
	}
}

func WithRetained(retained bool) OptFunc {
	return func(opts *Opts) {
		opts.retained = retained
	}
}

func WithUserName(userName string) OptFunc {
	return func(opts *Opts) {
		opts.userName = userName
	}
}

func WithPassword(password string) OptFunc {
	return func(opts *Opts) {
		opts.password = password
	}
}

type Destination struct {
	client MQTT.Client
	cfg    Opts
	errc   chan error
}

func loadOpts(opts []OptFunc) Opts {
	cfg := Opts{
		topic:     "winevt",
		qos:       1,
		keepAlive: 30 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (o Opts) validate() error {
	if o.broker == "" {
		return errors.New("mqtt: missing broker")
	}
	if o.clientID == "" {
		return errors.New("mqtt: missing clientID")
	}
	if o.qos > 2 {
		return fmt.Errorf("mqtt: invalid qos %d", o.qos)
	}
	return nil
}

// NewDestination connects to the broker.
func NewDestination(opts ...OptFunc) (*Destination, error) {
	cfg := loadOpts(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ret := &Destination{
		cfg:  cfg,
		errc: make(chan error, 1),
	}

	connLost := func(client MQTT.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", cfg.broker, "error", err)
		select {
		case ret.errc <- err:
		default:
		}
	}

	clientOpts := MQTT.NewClientOptions().
		AddBroker(cfg.broker).
		SetClientID(cfg.clientID).
		SetConnectionLostHandler(connLost).
		SetKeepAlive(cfg.keepAlive)
	if cfg.userName != "" {
		clientOpts = clientOpts.SetUsername(cfg.userName)
	}
	if cfg.password != "" {
		clientOpts = clientOpts.SetPassword(cfg.password)
	}

	ret.client = MQTT.NewClient(clientOpts)
	if token := ret.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", token.Error())
	}
	return ret, nil
}

// Run blocks until ctx is done or the connection is lost.
func (dest *Destination) Run(ctx context.Context) error {
	var err error
	select {
	case err = <-dest.errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	dest.client.Disconnect(1000)
	return err
}

func (dest *Destination) Send(ctx context.Context, ack func(), msgs ...flow.Message[[]byte]) error {
	for _, msg := range msgs {
		topic := dest.cfg.topic
		if msg.Topic != "" {
			topic = msg.Topic
		}
		token := dest.client.Publish(topic, dest.cfg.qos, dest.cfg.retained, msg.Value)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := token.Error(); err != nil {
			return err
		}
	}
	flow.Ack(ack)
	return nil
}
