package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/biedra-watchdog/internal/config"
	"github.com/couchcryptid/biedra-watchdog/internal/domain"
	"github.com/couchcryptid/biedra-watchdog/internal/observability"
	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

const (
	EventPosition = "position"
	EventEnabled  = "enabled"

	defaultBuffer = 64
)

// ErrSinkClosed is returned by Run once Close has been called and the queue
// is drained.
var ErrSinkClosed = errors.New("position sink closed")

// MessageWriter is the subset of kafkago.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PositionEvent is the JSON value written for every watchdog emission.
type PositionEvent struct {
	WatchdogID string           `json:"watchdog_id"`
	DeviceID   string           `json:"device_id"`
	EventType  string           `json:"event_type"`
	Position   *domain.Position `json:"position,omitempty"`
	Source     string           `json:"source,omitempty"`
	Enabled    *bool            `json:"enabled,omitempty"`
	EmittedAt  time.Time        `json:"emitted_at"`
}

// Sink forwards watchdog fixes and enabled changes to a Kafka topic. Signal
// callbacks only enqueue; a separate goroutine writes. Events are dropped
// when the buffer is full so the watchdog loop never blocks on Kafka.
type Sink struct {
	writer     MessageWriter
	watchdogID string
	deviceID   string
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	queue chan PositionEvent
	done  chan struct{} // closed when Run returns

	mu      sync.Mutex
	closed  bool
	running bool
	cancels []func()
}

// NewWriter creates a Kafka producer for the configured position topic.
func NewWriter(cfg *config.Config) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPositionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// NewSink creates a sink. Messages are keyed by watchdogID.
func NewSink(writer MessageWriter, watchdogID, deviceID string, logger *slog.Logger, metrics *observability.Metrics) *Sink {
	return &Sink{
		writer:     writer,
		watchdogID: watchdogID,
		deviceID:   deviceID,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
		queue:      make(chan PositionEvent, defaultBuffer),
		done:       make(chan struct{}),
	}
}

// WithClock replaces the clock used for emitted_at.
func (s *Sink) WithClock(c clockwork.Clock) *Sink {
	if c != nil {
		s.clock = c
	}
	return s
}

// Attach subscribes the sink to the watchdog's fix and enabled signals.
func (s *Sink) Attach(fixes *watchdog.Signal[watchdog.Fix], enabled *watchdog.Signal[bool]) {
	cancelFix := fixes.Subscribe(func(f watchdog.Fix) {
		p := f.Position
		s.enqueue(PositionEvent{EventType: EventPosition, Position: &p, Source: string(f.Source)})
	})
	cancelEnabled := enabled.Subscribe(func(on bool) {
		s.enqueue(PositionEvent{EventType: EventEnabled, Enabled: &on})
	})

	s.mu.Lock()
	s.cancels = append(s.cancels, cancelFix, cancelEnabled)
	s.mu.Unlock()
}

func (s *Sink) enqueue(ev PositionEvent) {
	ev.WatchdogID = s.watchdogID
	ev.DeviceID = s.deviceID
	ev.EmittedAt = s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.metrics.SinkMessages.WithLabelValues("dropped").Inc()
		s.logger.Warn("position sink buffer full, dropping event", "event_type", ev.EventType)
	}
}

// Run writes queued events until ctx is done, or until Close was called and
// every queued event is written. Run must be called at most once.
func (s *Sink) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.queue:
			if !ok {
				return ErrSinkClosed
			}
			s.write(ctx, ev)
		}
	}
}

func (s *Sink) write(ctx context.Context, ev PositionEvent) {
	msg, err := serializeToMessage(ev)
	if err != nil {
		s.metrics.SinkMessages.WithLabelValues("error").Inc()
		s.logger.Error("serialize position event", "error", err)
		return
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.metrics.SinkMessages.WithLabelValues("error").Inc()
		s.logger.Error("kafka write failed", "event_type", ev.EventType, "error", err)
		return
	}
	s.metrics.SinkMessages.WithLabelValues("written").Inc()
}

// Close detaches from the signals, waits for Run to write the queued events
// and closes the writer. When ctx ends first the remaining events are
// abandoned.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	cancels := s.cancels
	s.cancels = nil
	close(s.queue)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	if running {
		select {
		case <-s.done:
		case <-ctx.Done():
			s.logger.Warn("position sink drain abandoned", "queued", len(s.queue), "error", ctx.Err())
		}
	}
	return s.writer.Close()
}

// serializeToMessage marshals a PositionEvent into a Kafka message.
func serializeToMessage(ev PositionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize position event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.WatchdogID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "emitted_at", Value: []byte(ev.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
