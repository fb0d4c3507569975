package detector

import (
	"context"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func permissiveConfig() Config {
	return Config{
		ConnectionRateThreshold: 1000,
		ConnectionRateWindow:    time.Minute,
		RequestRateThreshold:    1000,
		RequestRateWindow:       time.Minute,
		TrafficVolumeThreshold:  1 << 30,
		TrafficVolumeWindow:     time.Minute,
		AnomalyThreshold:        3.0,
		AnomalyWindow:           5 * time.Minute,
	}
}

func newTestDetector(config Config) (Detector, *counter.MemoryStore) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := counter.NewMemoryStore(&counter.MemoryStoreOpts{
		TimeProvider: func() time.Time { return now },
	})
	d := NewDetector(store, config, logrus.New(), &DetectorOpts{
		TimeProvider: func() time.Time { return now },
	})
	return d, store
}

func TestDetector_CheckConnectionThreshold(t *testing.T) {
	config := permissiveConfig()
	config.ConnectionRateThreshold = 2
	d, store := newTestDetector(config)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		verdict, err := d.CheckConnection(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.False(t, verdict.Blocked)
	}

	verdict, err := d.CheckConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, verdict.Blocked)
	assert.Equal(t, SignalConnectionRate, verdict.Signal)

	// A positive detection leaves an advisory marker behind.
	marker, err := store.Get(ctx, counter.Key("ddos_connection", "1.2.3.4"))
	require.NoError(t, err)
	assert.NotZero(t, marker)
}

func TestDetector_CheckRequestRateThreshold(t *testing.T) {
	config := permissiveConfig()
	config.RequestRateThreshold = 2
	d, _ := newTestDetector(config)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		verdict, err := d.CheckRequest(ctx, "1.2.3.4", 100)
		require.NoError(t, err)
		assert.False(t, verdict.Blocked)
	}

	verdict, err := d.CheckRequest(ctx, "1.2.3.4", 100)
	require.NoError(t, err)
	assert.True(t, verdict.Blocked)
	assert.Equal(t, SignalRequestRate, verdict.Signal)
}

func TestDetector_CheckRequestVolumeThreshold(t *testing.T) {
	config := permissiveConfig()
	config.TrafficVolumeThreshold = 1000
	d, _ := newTestDetector(config)
	ctx := context.Background()

	verdict, err := d.CheckRequest(ctx, "1.2.3.4", 600)
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)

	verdict, err = d.CheckRequest(ctx, "1.2.3.4", 600)
	require.NoError(t, err)
	assert.True(t, verdict.Blocked)
	assert.Equal(t, SignalTrafficVolume, verdict.Signal)
}

func TestDetector_RequestRateWinsOverVolume(t *testing.T) {
	config := permissiveConfig()
	config.RequestRateThreshold = 1
	config.TrafficVolumeThreshold = 1
	d, _ := newTestDetector(config)
	ctx := context.Background()

	_, err := d.CheckRequest(ctx, "1.2.3.4", 100)
	require.NoError(t, err)

	verdict, err := d.CheckRequest(ctx, "1.2.3.4", 100)
	require.NoError(t, err)
	require.True(t, verdict.Blocked)
	assert.Equal(t, SignalRequestRate, verdict.Signal)
}

func TestDetector_AnomalyNeedsTwoSamples(t *testing.T) {
	d, _ := newTestDetector(permissiveConfig())
	ctx := context.Background()

	verdict, err := d.DetectAnomaly(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)

	_, err = d.CheckRequest(ctx, "1.2.3.4", 100)
	require.NoError(t, err)

	verdict, err = d.DetectAnomaly(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)
}

func TestDetector_AnomalyZeroVarianceIsNormal(t *testing.T) {
	d, _ := newTestDetector(permissiveConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := d.CheckRequest(ctx, "1.2.3.4", 100)
		require.NoError(t, err)
	}

	verdict, err := d.DetectAnomaly(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)
}

func TestDetector_AnomalyFlagsTrafficSpike(t *testing.T) {
	d, _ := newTestDetector(permissiveConfig())
	ctx := context.Background()

	for i := 0; i < 19; i++ {
		_, err := d.CheckRequest(ctx, "1.2.3.4", 100)
		require.NoError(t, err)
	}
	_, err := d.CheckRequest(ctx, "1.2.3.4", 10000)
	require.NoError(t, err)

	verdict, err := d.DetectAnomaly(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, verdict.Blocked)
	assert.Equal(t, SignalAnomaly, verdict.Signal)
}

func TestDetector_ResetClearsAllSignals(t *testing.T) {
	config := permissiveConfig()
	config.ConnectionRateThreshold = 1
	d, store := newTestDetector(config)
	ctx := context.Background()

	_, err := d.CheckConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	verdict, err := d.CheckConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, verdict.Blocked)

	require.NoError(t, d.Reset(ctx, "1.2.3.4"))

	verdict, err = d.CheckConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, verdict.Blocked)

	marker, err := store.Get(ctx, counter.Key("ddos_connection", "1.2.3.4"))
	require.NoError(t, err)
	assert.Zero(t, marker)
}
