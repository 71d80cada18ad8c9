package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	xlog "github.com/sweeney/tempo-deck/internal/log"
	"github.com/sweeney/tempo-deck/internal/metrics"
	"github.com/sweeney/tempo-deck/internal/protocol"
)

const (
	defaultBufferSize = 256
	inboundQueue      = 64
	publishTimeout    = 5 * time.Second
)

// Options configures a RealBus.
type Options struct {
	Broker         string
	ClientID       string // a random suffix is appended
	Topics         Topics
	BufferSize     int
	ConnectTimeout time.Duration
}

// RealBus talks to the host through an actual MQTT broker.
type RealBus struct {
	client paho.Client
	topics Topics

	in   chan protocol.Inbound
	done chan struct{}

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
	closeOnce sync.Once
}

// NewRealBus connects to the broker and subscribes to the inbound topic.
// A broker that is down at startup is retried in the background; Send
// buffers until the first connection succeeds.
func NewRealBus(opts Options) (*RealBus, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "tempo-deck"
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = TopicsFor(DefaultPrefix)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	b := &RealBus{
		topics: opts.Topics,
		in:     make(chan protocol.Inbound, inboundQueue),
		done:   make(chan struct{}),
		buf:    newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt: format will: %w", err)
	}

	clientID := opts.ClientID + "-" + uuid.NewString()[:8]
	popts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(b.topics.System, will, 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)

	b.client = paho.NewClient(popts)
	token := b.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		logger := xlog.WithComponent("mqtt")
		logger.Warn().Str("broker", opts.Broker).Msg("broker not reachable yet, retrying in background")
		return b, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", err)
	}
	return b, nil
}

// Inbound delivers decoded host messages. The channel is never closed.
func (b *RealBus) Inbound() <-chan protocol.Inbound {
	return b.in
}

func (b *RealBus) onConnect(c paho.Client) {
	logger := xlog.WithComponent("mqtt")

	token := c.Subscribe(b.topics.In, 1, b.onMessage)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		logger.Error().Err(token.Error()).Str("topic", b.topics.In).Msg("subscribe failed")
	}

	b.mu.Lock()
	reconnect := b.everUp
	b.connected = true
	b.everUp = true
	pending := b.buf.drainAll()
	b.mu.Unlock()

	logger.Info().Int("replayed", len(pending)).Bool("reconnect", reconnect).Msg("connected to broker")
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(b.topics.System, 1, false, payload)
		}
	}
}

func (b *RealBus) onConnectionLost(_ paho.Client, err error) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	logger := xlog.WithComponent("mqtt")
	logger.Warn().Err(err).Msg("connection lost")
}

func (b *RealBus) onMessage(_ paho.Client, m paho.Message) {
	logger := xlog.WithComponent("mqtt")

	msg, err := protocol.Decode(m.Payload())
	if errors.Is(err, protocol.ErrUnknownEvent) {
		logger.Debug().Err(err).Msg("ignoring host event")
		return
	}
	if err != nil {
		metrics.IncBusError("in")
		logger.Warn().Err(err).Str("topic", m.Topic()).Msg("undecodable host message")
		return
	}

	select {
	case b.in <- msg:
	case <-b.done:
	default:
		metrics.IncBusError("in")
		logger.Warn().Str("surface", msg.SurfaceID()).Msg("inbound queue full, dropping message")
	}
}

// Send encodes msg and publishes it on the outbound topic. While the broker
// is unreachable the message is buffered; a newer visual for the same
// surface replaces a buffered one.
func (b *RealBus) Send(msg protocol.Outbound) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", protocol.EventName(msg), err)
	}
	var key string
	if _, ok := msg.(protocol.SetVisual); ok {
		key = protocol.EventSetImage + "/" + msg.SurfaceID()
	}
	return b.publish(bufferedMsg{topic: b.topics.Out, key: key, payload: payload})
}

// PublishSystem sends a lifecycle event on the system topic with QoS 1.
func (b *RealBus) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return b.publish(bufferedMsg{topic: b.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (b *RealBus) publish(m bufferedMsg) error {
	b.mu.Lock()
	if !b.connected {
		b.buf.push(m)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	token := b.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.IncBusError("out")
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		metrics.IncBusError("out")
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (b *RealBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Close disconnects from the broker.
func (b *RealBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.client.Disconnect(1000)
	})
	return nil
}

var (
	_ Bus              = (*RealBus)(nil)
	_ ConnectionStatus = (*RealBus)(nil)
	_ Bus              = (*FakeBus)(nil)
)
