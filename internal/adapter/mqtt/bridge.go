// Package mqtt bridges a device's location services onto the watchdog ports
// over MQTT. The device publishes JSON reports on three topics below
// devices/<id>/.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
	"github.com/couchcryptid/biedra-watchdog/internal/observability"
	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

const (
	qos            = 1
	defaultTimeout = 5 * time.Second
)

var (
	// ErrNotRegistered is returned by Unregister without a matching Register.
	ErrNotRegistered = errors.New("provider events not registered")

	// ErrDisconnected is returned by Availability while the broker link is down.
	ErrDisconnected = errors.New("mqtt connection is not open")
)

// Subscriber is the subset of paho.Client used by the bridge.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	IsConnectionOpen() bool
}

// FixStore persists device fixes.
type FixStore interface {
	RecordFix(ctx context.Context, deviceID string, p domain.Position, recordedAt time.Time) error
	LastFix(ctx context.Context, deviceID string) (*domain.Position, error)
}

type providersPayload struct {
	GPS     bool `json:"gps"`
	Network bool `json:"network"`
}

type availabilityPayload struct {
	Available bool `json:"available"`
}

type fixPayload struct {
	Lat  *float64  `json:"lat"`
	Lng  *float64  `json:"lng"`
	Time time.Time `json:"time"`
}

// Bridge implements watchdog.ProviderStatus, watchdog.ProviderEvents and
// watchdog.LocationClient for one device.
type Bridge struct {
	client   Subscriber
	deviceID string
	store    FixStore
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	timeout  time.Duration

	mu        sync.Mutex
	providers watchdog.ProviderState
	available bool
	lastFix   *domain.Position
	notify    func(watchdog.ProviderState)
	active    map[string]func(paho.Message) // restored after every reconnect
}

// NewBridge creates a bridge for deviceID. A nil store keeps only the last
// fix in memory.
func NewBridge(client Subscriber, deviceID string, store FixStore, logger *slog.Logger, metrics *observability.Metrics) *Bridge {
	return &Bridge{
		client:   client,
		deviceID: deviceID,
		store:    store,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
		timeout:  defaultTimeout,
		active:   make(map[string]func(paho.Message)),
	}
}

// NewClient creates a paho client for the broker. The caller connects it.
func NewClient(broker, clientID string, logger *slog.Logger) paho.Client {
	return paho.NewClient(clientOptions(broker, clientID, logger))
}

// Dial connects to the broker and returns a bridge whose subscriptions are
// restored on every reconnect. The returned client is owned by the caller.
func Dial(ctx context.Context, broker, clientID, deviceID string, store FixStore, logger *slog.Logger, metrics *observability.Metrics) (*Bridge, paho.Client, error) {
	b := NewBridge(nil, deviceID, store, logger, metrics)

	opts := clientOptions(broker, clientID, logger).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
			b.connectionLost()
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
			if err := b.Resubscribe(); err != nil {
				logger.Error("mqtt resubscribe failed", "error", err)
			}
		})
	client := paho.NewClient(opts)
	b.client = client

	if err := Connect(ctx, client); err != nil {
		return nil, nil, err
	}
	return b, client, nil
}

func clientOptions(broker, clientID string, logger *slog.Logger) *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
		})
}

// Connect connects the client, giving up when ctx is done.
func Connect(ctx context.Context, client paho.Client) error {
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
}

// WithClock replaces the clock used to timestamp fixes without a time.
func (b *Bridge) WithClock(c clockwork.Clock) *Bridge {
	if c != nil {
		b.clock = c
	}
	return b
}

// ProvidersTopic is where the device reports its provider switches.
func (b *Bridge) ProvidersTopic() string { return b.topic("providers") }

// AvailabilityTopic is where the device reports location availability.
func (b *Bridge) AvailabilityTopic() string { return b.topic("availability") }

// FixTopic is where the device reports position fixes.
func (b *Bridge) FixTopic() string { return b.topic("fix") }

func (b *Bridge) topic(kind string) string {
	return fmt.Sprintf("devices/%s/%s", b.deviceID, kind)
}

// Start subscribes to the availability and fix topics.
func (b *Bridge) Start() error {
	if err := b.subscribe(b.AvailabilityTopic(), b.handleAvailability); err != nil {
		return err
	}
	return b.subscribe(b.FixTopic(), b.handleFix)
}

// Stop drops the availability and fix subscriptions.
func (b *Bridge) Stop() error {
	return b.unsubscribe(b.AvailabilityTopic(), b.FixTopic())
}

// Resubscribe restores every active subscription. A clean-session reconnect
// loses them on the broker side.
func (b *Bridge) Resubscribe() error {
	b.mu.Lock()
	active := make(map[string]func(paho.Message), len(b.active))
	for topic, handler := range b.active {
		active[topic] = handler
	}
	b.mu.Unlock()

	var errs []error
	for topic, handler := range active {
		if err := b.subscribe(topic, handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// connectionLost forgets the availability flag; it is stale until the
// device reports again.
func (b *Bridge) connectionLost() {
	b.mu.Lock()
	b.available = false
	b.mu.Unlock()
}

// Register subscribes to provider reports; notify receives each report.
func (b *Bridge) Register(notify func(watchdog.ProviderState)) error {
	b.mu.Lock()
	b.notify = notify
	b.mu.Unlock()

	if err := b.subscribe(b.ProvidersTopic(), b.handleProviders); err != nil {
		b.mu.Lock()
		b.notify = nil
		b.mu.Unlock()
		return err
	}
	return nil
}

// Unregister drops the provider subscription.
func (b *Bridge) Unregister() error {
	b.mu.Lock()
	registered := b.notify != nil
	b.notify = nil
	b.mu.Unlock()

	if !registered {
		return ErrNotRegistered
	}
	return b.unsubscribe(b.ProvidersTopic())
}

// ProviderStates returns the last reported provider switches. Both are off
// until the device reports.
func (b *Bridge) ProviderStates() watchdog.ProviderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.providers
}

// Availability returns the last reported availability flag.
func (b *Bridge) Availability(_ context.Context) (bool, error) {
	if !b.client.IsConnectionOpen() {
		return false, ErrDisconnected
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available, nil
}

// LastLocation returns the newest stored fix, or nil.
func (b *Bridge) LastLocation(ctx context.Context) (*domain.Position, error) {
	if b.store != nil {
		return b.store.LastFix(ctx, b.deviceID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastFix == nil {
		return nil, nil
	}
	p := *b.lastFix
	return &p, nil
}

func (b *Bridge) subscribe(topic string, handler func(paho.Message)) error {
	token := b.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg)
	})
	if err := b.wait(token, "subscribe "+topic); err != nil {
		return err
	}

	b.mu.Lock()
	b.active[topic] = handler
	b.mu.Unlock()
	b.logger.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (b *Bridge) unsubscribe(topics ...string) error {
	b.mu.Lock()
	for _, topic := range topics {
		delete(b.active, topic)
	}
	b.mu.Unlock()
	return b.wait(b.client.Unsubscribe(topics...), "unsubscribe")
}

func (b *Bridge) wait(token paho.Token, op string) error {
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}

func (b *Bridge) handleProviders(msg paho.Message) {
	var p providersPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		b.invalid("providers", msg, err)
		return
	}
	b.metrics.DeviceMessages.WithLabelValues("providers", "ok").Inc()

	state := watchdog.ProviderState{GPS: p.GPS, Network: p.Network}
	b.mu.Lock()
	b.providers = state
	notify := b.notify
	b.mu.Unlock()

	if notify != nil {
		notify(state)
	}
}

func (b *Bridge) handleAvailability(msg paho.Message) {
	var a availabilityPayload
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		b.invalid("availability", msg, err)
		return
	}
	b.metrics.DeviceMessages.WithLabelValues("availability", "ok").Inc()

	b.mu.Lock()
	b.available = a.Available
	b.mu.Unlock()
}

func (b *Bridge) handleFix(msg paho.Message) {
	var f fixPayload
	if err := json.Unmarshal(msg.Payload(), &f); err != nil {
		b.invalid("fix", msg, err)
		return
	}
	if f.Lat == nil || f.Lng == nil {
		b.invalid("fix", msg, errors.New("missing coordinate"))
		return
	}
	p := domain.At(*f.Lat, *f.Lng)
	if err := p.Validate(); err != nil {
		b.invalid("fix", msg, err)
		return
	}

	recordedAt := f.Time
	if recordedAt.IsZero() {
		recordedAt = b.clock.Now()
	}

	b.mu.Lock()
	b.lastFix = &p
	b.mu.Unlock()

	if b.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.store.RecordFix(ctx, b.deviceID, p, recordedAt); err != nil {
			b.metrics.DeviceMessages.WithLabelValues("fix", "error").Inc()
			b.logger.Error("failed to record fix", "device_id", b.deviceID, "error", err)
			return
		}
	}
	b.metrics.DeviceMessages.WithLabelValues("fix", "ok").Inc()
	b.logger.Debug("fix received", "device_id", b.deviceID, "position", p.String())
}

func (b *Bridge) invalid(kind string, msg paho.Message, err error) {
	b.metrics.DeviceMessages.WithLabelValues(kind, "invalid").Inc()
	b.logger.Warn("invalid device message", "topic", msg.Topic(), "error", err)
}
