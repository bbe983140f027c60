package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/session"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 1000

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var errPublishTimeout = errors.New("publish timeout")

// Config configures a RealPublisher.
type Config struct {
	Broker string
	// ClientID defaults to "tec-monitor-" plus a random suffix.
	ClientID   string
	BufferSize int
	Logger     *zap.SugaredLogger
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// the broker is unreachable wait in a bounded outbox and are replayed,
// oldest first, when the connection returns.
type RealPublisher struct {
	client paho.Client
	log    *zap.SugaredLogger

	out *outbox

	mu      sync.Mutex
	handler CommandHandler

	connected     atomic.Bool
	everConnected atomic.Bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// does not answer within the connect timeout the publisher is still
// returned; it keeps retrying in the background and buffers meanwhile.
func NewRealPublisher(cfg Config) (*RealPublisher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tec-monitor-" + uuid.NewString()[:8]
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if u, err := url.Parse(cfg.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid broker URL %q", cfg.Broker)
	}

	p := &RealPublisher{log: cfg.Logger.Named("mqtt")}
	p.out = newOutbox(cfg.BufferSize, p.log)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline, Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warnw("broker not reachable yet, buffering", "broker", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	p.log.Infow("connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.connected.Store(true)
	reconnect := p.everConnected.Swap(true)

	pending := p.out.take()
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()

	if len(pending) > 0 {
		p.log.Infow("replaying buffered messages", "count", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Warnw("replay failed", "topic", m.topic, "error", err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventReconnected, Retained: true}); err != nil {
			p.log.Warnw("publish reconnect event", "error", err)
		}
	}
	// Subscriptions do not survive a clean-session reconnect.
	if handler != nil {
		if err := Subscribe(c, handler, p.log); err != nil {
			p.log.Errorw("resubscribe", "error", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.connected.Store(false)
	p.log.Warnw("connection lost", "error", err)
}

// publish sends msg now, or buffers it while disconnected or on failure.
func (p *RealPublisher) publish(msg message) error {
	if !p.connected.Load() {
		p.out.add(msg)
		return nil
	}
	if err := p.send(msg); err != nil {
		p.out.add(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg message) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Publish sends a sample to TopicReadings.
func (p *RealPublisher) Publish(sample session.Sample) error {
	payload, err := FormatPayload(sample)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	if err := p.publish(message{topic: TopicReadings, payload: payload}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to TopicSystem.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events must arrive
	if err := p.publish(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// SubscribeCommands delivers parsed commands from TopicCommand to handler,
// now if connected and again after every reconnect.
func (p *RealPublisher) SubscribeCommands(handler CommandHandler) error {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	if !p.connected.Load() {
		return nil
	}
	return Subscribe(p.client, handler, p.log)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	return p.out.len()
}

// Dropped returns the number of messages discarded because the outbox was
// full.
func (p *RealPublisher) Dropped() uint64 {
	return p.out.droppedTotal()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	p.connected.Store(false)
	if n := p.Buffered(); n > 0 {
		p.log.Warnw("closing with unsent messages", "count", n, "dropped", p.Dropped())
	}
	return nil
}
