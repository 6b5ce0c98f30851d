package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/biedra-watchdog/internal/domain"
	"github.com/couchcryptid/biedra-watchdog/internal/observability"
)

var (
	// ErrAlreadyRegistered is returned by Register on a running watchdog.
	ErrAlreadyRegistered = errors.New("watchdog already registered")

	// ErrStopped is returned by Register after Unregister.
	ErrStopped = errors.New("watchdog stopped")
)

// Config tunes a Watchdog.
type Config struct {
	// PollInterval is the availability polling cadence while enabled and unavailable.
	PollInterval time.Duration
	// QueryTimeout bounds each availability and last-location query.
	QueryTimeout time.Duration
	// Fallback is published when no real fix can be obtained.
	Fallback domain.Position
}

// DefaultConfig polls once a second and falls back to Warsaw.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		QueryTimeout: 2 * time.Second,
		Fallback:     domain.Warsaw,
	}
}

// Watchdog tracks provider state and republishes a best-effort current
// position. All state transitions happen on one event-loop goroutine.
type Watchdog struct {
	id       uuid.UUID
	cfg      Config
	platform Platform
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	location *Signal[domain.Position]
	fixes    *Signal[Fix]
	enabled  *Signal[bool]
	states   *Signal[State]

	pendingMu sync.Mutex
	pending   []ProviderState
	closed    bool // set by Unregister; later broadcasts are dropped
	changed   chan struct{} // wakes the loop; pending holds the events

	lifecycleMu sync.Mutex
	registered  bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}

	mu    sync.RWMutex // guards state and fix for readers outside the loop
	state State
	fix   Fix

	ticker clockwork.Ticker // owned by the loop
}

// New creates an unregistered Watchdog. Zero durations in cfg take the
// DefaultConfig values.
func New(platform Platform, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Watchdog {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	return &Watchdog{
		id:       uuid.New(),
		cfg:      cfg,
		platform: platform,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
		location: NewSeededSignal(cfg.Fallback),
		fixes:    NewSignal[Fix](),
		enabled:  NewSignal[bool](),
		states:   NewSeededSignal(StateDisabled),
		changed:  make(chan struct{}, 1),
	}
}

// WithClock replaces the time source. It must be called before Register.
func (w *Watchdog) WithClock(c clockwork.Clock) *Watchdog {
	if c != nil {
		w.clock = c
	}
	return w
}

// ID identifies this watchdog instance in downstream messages.
func (w *Watchdog) ID() uuid.UUID { return w.id }

// Location is the current position signal, seeded with the fallback.
func (w *Watchdog) Location() *Signal[domain.Position] { return w.location }

// Fixes carries every published position together with its source.
func (w *Watchdog) Fixes() *Signal[Fix] { return w.fixes }

// Enabled reports whether a GPS or network provider is enabled.
func (w *Watchdog) Enabled() *Signal[bool] { return w.enabled }

// States carries every state transition.
func (w *Watchdog) States() *Signal[State] { return w.states }

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Fix returns the last published fix.
func (w *Watchdog) Fix() Fix {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fix
}

// Snapshot returns state, enabled flag and position together.
func (w *Watchdog) Snapshot() Snapshot {
	enabled, _ := w.enabled.Value()
	pos, _ := w.location.Value()
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{State: w.state, Enabled: enabled, Position: pos, Fix: w.fix}
}

// CheckReadiness returns nil once the watchdog is registered and has
// evaluated provider state at least once.
func (w *Watchdog) CheckReadiness(_ context.Context) error {
	w.lifecycleMu.Lock()
	registered, stopped := w.registered, w.stopped
	w.lifecycleMu.Unlock()

	switch {
	case stopped:
		return ErrStopped
	case !registered:
		return errors.New("watchdog not registered")
	case !w.enabled.HasValue():
		return errors.New("provider state not evaluated yet")
	}
	return nil
}

// Register subscribes to provider changes, performs the initial enabled
// check and starts the event loop.
func (w *Watchdog) Register(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.registered {
		w.logger.Warn("watchdog register called twice", "watchdog_id", w.id)
		return ErrAlreadyRegistered
	}

	w.logger.Debug("watchdog register", "watchdog_id", w.id)
	if err := w.platform.Events.Register(w.notifyChanged); err != nil {
		return fmt.Errorf("register provider events: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.registered = true

	go w.run(loopCtx)
	return nil
}

// Unregister releases the provider subscription, stops the event loop and
// closes all signals. Provider unsubscribe errors are logged, not returned.
func (w *Watchdog) Unregister() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.stopped {
		return
	}
	w.logger.Debug("watchdog unregister", "watchdog_id", w.id)

	if err := w.platform.Events.Unregister(); err != nil {
		w.logger.Error("error while unregistering provider events", "watchdog_id", w.id, "error", err)
	}

	if w.registered {
		w.cancel()
		<-w.done
	}
	w.pendingMu.Lock()
	w.closed = true
	w.pending = nil
	w.pendingMu.Unlock()
	w.stopped = true
	w.setState(StateStopped)

	w.location.Close()
	w.fixes.Close()
	w.enabled.Close()
	w.states.Close()
}

// notifyChanged queues a provider broadcast. Every queued state is evaluated
// in arrival order, even when the loop is busy in a query.
func (w *Watchdog) notifyChanged(p ProviderState) {
	w.pendingMu.Lock()
	if w.closed {
		w.pendingMu.Unlock()
		return
	}
	w.pending = append(w.pending, p)
	w.pendingMu.Unlock()

	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// takePending returns and clears the queued broadcasts.
func (w *Watchdog) takePending() []ProviderState {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	events := w.pending
	w.pending = nil
	return events
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)
	defer w.stopPolling()

	w.refreshEnabled(w.platform.Status.ProviderStates())

	for {
		var tick <-chan time.Time
		if w.ticker != nil {
			tick = w.ticker.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case <-w.changed:
			for _, p := range w.takePending() {
				w.refreshEnabled(p)
			}
		case <-tick:
			w.checkAvailability(ctx)
		}
	}
}

// refreshEnabled evaluates one set of provider flags and drives the enabled
// transitions.
func (w *Watchdog) refreshEnabled(providers ProviderState) {
	enabled := providers.Enabled()

	w.logger.Debug("provider state changed", "gps", providers.GPS, "network", providers.Network, "enabled", enabled)
	w.metrics.ProviderChanges.Inc()
	w.metrics.LocationEnabled.Set(boolGauge(enabled))

	switch {
	case !enabled:
		w.stopPolling()
		w.setState(StateDisabled)
	case w.State() == StateEnabledUnavailable:
		// Already polling; a repeated enabled event does not add a second ticker.
	default:
		w.setState(StateEnabledUnavailable)
		w.startPolling()
	}

	w.enabled.Publish(enabled)
}

// checkAvailability runs one polling tick.
func (w *Watchdog) checkAvailability(ctx context.Context) {
	if w.State() != StateEnabledUnavailable {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
	available, err := w.platform.Client.Availability(qctx)
	cancel()

	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		w.metrics.AvailabilityChecks.WithLabelValues("error").Inc()
		w.logger.Warn("location availability check failed", "error", err)
		return
	case !available:
		w.metrics.AvailabilityChecks.WithLabelValues("unavailable").Inc()
		w.logger.Debug("location not available yet")
		return
	}

	w.metrics.AvailabilityChecks.WithLabelValues("available").Inc()
	w.stopPolling()
	w.setState(StateEnabledAvailable)
	w.publishLocation(ctx)
}

// publishLocation publishes the last known fix, or the fallback when no
// position was ever published.
func (w *Watchdog) publishLocation(ctx context.Context) {
	start := w.clock.Now()
	qctx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
	pos, err := w.platform.Client.LastLocation(qctx)
	cancel()
	w.metrics.LocationLookupDuration.Observe(w.clock.Since(start).Seconds())

	switch {
	case err != nil:
		w.logger.Warn("last location lookup failed", "error", err)
		w.publishFallback()
	case pos == nil:
		w.logger.Debug("no last known location")
		w.publishFallback()
	default:
		w.logger.Debug("publishing location", "position", pos.String())
		w.publish(Fix{Position: *pos, Source: SourceDevice})
	}
}

func (w *Watchdog) publishFallback() {
	if w.Fix().Published() {
		w.metrics.LocationPublishes.WithLabelValues("skipped").Inc()
		return
	}
	w.publish(Fix{Position: w.cfg.Fallback, Source: SourceFallback})
}

func (w *Watchdog) publish(fix Fix) {
	w.mu.Lock()
	w.fix = fix
	w.mu.Unlock()

	w.metrics.LocationPublishes.WithLabelValues(string(fix.Source)).Inc()
	w.location.Publish(fix.Position)
	w.fixes.Publish(fix)
}

func (w *Watchdog) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()

	w.metrics.WatchdogState.Set(float64(s))
	if prev != s {
		w.logger.Info("watchdog state changed", "from", prev.String(), "to", s.String())
	}
	w.states.Publish(s)
}

func (w *Watchdog) startPolling() {
	if w.ticker != nil {
		return
	}
	w.ticker = w.clock.NewTicker(w.cfg.PollInterval)
}

func (w *Watchdog) stopPolling() {
	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	w.ticker = nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
