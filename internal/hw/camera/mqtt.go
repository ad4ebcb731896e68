package camera

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/BeamGo/internal/debug"
	"github.com/cjeanneret/BeamGo/internal/logic/geometry"
)

// Subscriber is the part of mqtt.Client the source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig describes the broker and topic carrying detector frames.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

type frameResult struct {
	points geometry.PointSet
	err    error
}

// MQTTSource receives frames published by a detector on an MQTT topic.
// Only the newest unprocessed frame is kept: a frame that arrives while the
// previous one is still waiting replaces it, so the loop never works on a
// backlog of stale images.
type MQTTSource struct {
	client Subscriber
	topic  string

	mu      sync.Mutex
	latest  *frameResult
	dropped int

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// DialMQTT connects to the broker and subscribes to cfg.Topic.
func DialMQTT(cfg MQTTConfig) (*MQTTSource, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "beamgo"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		debug.Info("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %v", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	debug.Info("Connected to MQTT broker %s", cfg.Broker)

	src, err := NewMQTTSource(client, cfg.Topic, cfg.QoS, cfg.Timeout)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return src, nil
}

// NewMQTTSource subscribes to topic on an already connected client.
func NewMQTTSource(client Subscriber, topic string, qos byte, timeout time.Duration) (*MQTTSource, error) {
	s := &MQTTSource{
		client: client,
		topic:  topic,
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	token := client.Subscribe(topic, qos, s.handle)
	if timeout > 0 && !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	debug.Verbose("Subscribed to %s", topic)
	return s, nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	points, err := DecodeFrame(msg.Payload())

	s.mu.Lock()
	if s.latest != nil {
		s.dropped++
	}
	s.latest = &frameResult{points: points, err: err}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next returns the newest frame, blocking until one arrives, ctx ends or the
// source is closed (io.EOF).
func (s *MQTTSource) Next(ctx context.Context) (geometry.PointSet, error) {
	for {
		s.mu.Lock()
		if r := s.latest; r != nil {
			s.latest = nil
			s.mu.Unlock()
			return r.points, r.err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.closed:
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped returns how many frames were replaced before being read.
func (s *MQTTSource) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes and disconnects. Pending and future Next calls return io.EOF.
func (s *MQTTSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		token := s.client.Unsubscribe(s.topic)
		if token.WaitTimeout(time.Second) {
			err = token.Error()
		}
		s.client.Disconnect(250)
		debug.Verbose("MQTT source closed (%d stale frames dropped)", s.Dropped())
	})
	return err
}
