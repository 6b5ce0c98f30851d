//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/biedra-watchdog/internal/adapter/kafka"
	"github.com/couchcryptid/biedra-watchdog/internal/adapter/mqtt"
	"github.com/couchcryptid/biedra-watchdog/internal/adapter/sqlite"
	"github.com/couchcryptid/biedra-watchdog/internal/config"
	"github.com/couchcryptid/biedra-watchdog/internal/domain"
	"github.com/couchcryptid/biedra-watchdog/internal/observability"
	"github.com/couchcryptid/biedra-watchdog/internal/watchdog"
)

const testPositionTopic = "test-device-positions"

func TestKafkaSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testPositionTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaPositionTopic: testPositionTopic}
	sink := kafka.NewSink(kafka.NewWriter(cfg), "wd-int", "phone-int", discardLogger(), observability.NewMetricsForTesting())

	fixes := watchdog.NewSignal[watchdog.Fix]()
	sink.Attach(fixes, watchdog.NewSignal[bool]())
	go func() { _ = sink.Run(ctx) }()
	t.Cleanup(func() { _ = sink.Close(context.Background()) })

	fixes.Publish(watchdog.Fix{Position: domain.Warsaw, Source: watchdog.SourceFallback})

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testPositionTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	msg, err := consumer.ReadMessage(ctx)
	require.NoError(t, err, "read from position topic")

	assert.Equal(t, "wd-int", string(msg.Key))
	var ev kafka.PositionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, kafka.EventPosition, ev.EventType)
	assert.Equal(t, "fallback", ev.Source)
	require.NotNil(t, ev.Position)
	assert.Equal(t, domain.Warsaw, *ev.Position)
}

// TestDeviceBridgeEndToEnd drives a watchdog through a real MQTT broker and
// SQLite fix store: providers on, a fix, then availability.
func TestDeviceBridgeEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	brokerURL := startMosquitto(ctx, t)
	deviceID := fmt.Sprintf("device-%d", time.Now().UnixNano())
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "fixes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx))

	bridge, client, err := mqtt.Dial(ctx, brokerURL, "watchdog-"+deviceID, deviceID, store, logger, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(250) })
	require.NoError(t, bridge.Start())

	w := watchdog.New(watchdog.Platform{Status: bridge, Events: bridge, Client: bridge}, watchdog.Config{
		PollInterval: 100 * time.Millisecond,
		Fallback:     domain.Warsaw,
	}, logger, metrics)
	require.NoError(t, w.Register(ctx))
	t.Cleanup(w.Unregister)

	device := mqtt.NewClient(brokerURL, "sim-"+deviceID, logger)
	require.NoError(t, mqtt.Connect(ctx, device))
	t.Cleanup(func() { device.Disconnect(250) })

	publish := func(topic, payload string) {
		token := device.Publish(topic, 1, false, payload)
		require.True(t, token.WaitTimeout(5*time.Second))
		require.NoError(t, token.Error())
	}

	krakow := domain.At(50.061947, 19.936856)
	publish(bridge.ProvidersTopic(), `{"gps":true,"network":false}`)
	require.Eventually(t, func() bool {
		return w.State() == watchdog.StateEnabledUnavailable
	}, 10*time.Second, 20*time.Millisecond)

	publish(bridge.FixTopic(), `{"lat":50.061947,"lng":19.936856}`)
	require.Eventually(t, func() bool {
		p, err := store.LastFix(ctx, deviceID)
		return err == nil && p != nil
	}, 10*time.Second, 20*time.Millisecond)

	publish(bridge.AvailabilityTopic(), `{"available":true}`)
	require.Eventually(t, func() bool {
		return w.State() == watchdog.StateEnabledAvailable
	}, 10*time.Second, 20*time.Millisecond)

	fix := w.Fix()
	assert.Equal(t, watchdog.SourceDevice, fix.Source)
	assert.Equal(t, krakow, fix.Position)

	pos, ok := w.Location().Value()
	require.True(t, ok)
	assert.Equal(t, krakow, pos)
}
