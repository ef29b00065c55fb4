package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/meter-sensor/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int     // messages kept while disconnected
	ImpPerKWh  float64 // meter constant for derived energy fields
	Logger     zerolog.Logger
}

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed, oldest
// first, when it comes back.
type RealPublisher struct {
	client    client
	impPerKWh float64
	log       zerolog.Logger
	now       func() time.Time

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: paho keeps retrying in the background and
// messages are buffered until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker address is empty")
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}

	p := &RealPublisher{
		impPerKWh: o.ImpPerKWh,
		log:       o.Logger,
		now:       time.Now,
		buf:       newRingBuffer(o.BufferSize, o.Logger),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost")
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn().Str("broker", o.Broker).Msg("mqtt broker not reachable yet, buffering")
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// newPublisher wires a publisher around an existing client. Used by tests.
func newPublisher(c client, bufferSize int, impPerKWh float64, log zerolog.Logger) *RealPublisher {
	return &RealPublisher{
		client:    c,
		impPerKWh: impPerKWh,
		log:       log,
		now:       time.Now,
		buf:       newRingBuffer(bufferSize, log),
	}
}

// Publish sends a meter reading to the MQTT broker.
func (p *RealPublisher) Publish(r logic.Reading) error {
	payload, err := FormatPayload(r, p.impPerKWh)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.send(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	msg := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		return nil
	}
	if err := p.publishLocked(msg); err != nil {
		p.buf.push(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) publishLocked(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// handleConnect announces a reconnection and replays buffered messages.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connectedOnce {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.publishLocked(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.log.Warn().Err(err).Msg("failed to publish reconnected event")
		}
	}
	p.connectedOnce = true

	pending := p.buf.drainAll()
	for i, m := range pending {
		if err := p.publishLocked(m); err != nil {
			for _, rest := range pending[i:] {
				p.buf.push(rest)
			}
			p.log.Warn().Err(err).Int("pending", len(pending)-i).Msg("replay interrupted")
			return
		}
	}
	if len(pending) > 0 {
		p.log.Info().Int("messages", len(pending)).Msg("replayed buffered messages")
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns how many buffered messages were lost to overflow.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
