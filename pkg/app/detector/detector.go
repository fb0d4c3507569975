package detector

import (
	"context"
	"math"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/sirupsen/logrus"
)

// Counter namespaces, one per signal, plus the advisory markers written on a
// positive detection.
const (
	ConnectionRateNamespace = "connection_rate"
	RequestRateNamespace    = "request_rate"
	TrafficVolumeNamespace  = "traffic_volume"
	TrafficHistoryNamespace = "traffic_history"

	connectionMarkerNamespace = "ddos_connection"
	requestMarkerNamespace    = "ddos_request"
	trafficMarkerNamespace    = "ddos_traffic"
	anomalyMarkerNamespace    = "ddos_anomaly"
)

// Signal identifies which heuristic flagged an identity.
type Signal string

const (
	SignalNone           Signal = ""
	SignalConnectionRate Signal = "connection_rate"
	SignalRequestRate    Signal = "request_rate"
	SignalTrafficVolume  Signal = "traffic_volume"
	SignalAnomaly        Signal = "anomaly"
)

// Verdict is the per-call detection outcome; it is never persisted.
type Verdict struct {
	Blocked bool
	Signal  Signal
}

type Config struct {
	ConnectionRateThreshold int64
	ConnectionRateWindow    time.Duration
	RequestRateThreshold    int64
	RequestRateWindow       time.Duration
	TrafficVolumeThreshold  int64
	TrafficVolumeWindow     time.Duration
	// AnomalyThreshold is a z-score bound in standard deviations.
	AnomalyThreshold float64
	AnomalyWindow    time.Duration
}

// Detector flags identities that trip any of four cumulative signals:
// connection rate, request rate, traffic volume and statistical anomaly.
// All counters live in the shared store; nothing is tracked in-process.
type Detector interface {
	// CheckConnection counts a connection attempt and reports whether the
	// connection-rate threshold was exceeded.
	CheckConnection(ctx context.Context, identity string) (Verdict, error)
	// CheckRequest counts a request and accumulates its size, reporting
	// whether the request-rate or traffic-volume threshold was exceeded.
	// It also records the size sample the anomaly signal later reads.
	CheckRequest(ctx context.Context, identity string, sizeBytes int64) (Verdict, error)
	// DetectAnomaly computes the z-score of the most recent traffic sample
	// against the retained history. Fewer than two samples, or zero
	// variance, is never anomalous.
	DetectAnomaly(ctx context.Context, identity string) (Verdict, error)
	// Reset clears every signal counter and marker for the identity.
	Reset(ctx context.Context, identity string) error
}

type DetectorOpts struct {
	TimeProvider func() time.Time
}

type detector struct {
	store        counter.Store
	config       Config
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func NewDetector(store counter.Store, config Config, logger *logrus.Logger, opts *DetectorOpts) Detector {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &detector{
		store:        store,
		config:       config,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

func (d *detector) CheckConnection(ctx context.Context, identity string) (Verdict, error) {
	count, err := d.store.IncrementWithWindow(
		ctx,
		counter.Key(ConnectionRateNamespace, identity),
		d.config.ConnectionRateWindow,
	)
	if err != nil {
		return Verdict{}, err
	}
	if count > d.config.ConnectionRateThreshold {
		d.mark(ctx, connectionMarkerNamespace, identity, d.config.ConnectionRateWindow)
		return Verdict{Blocked: true, Signal: SignalConnectionRate}, nil
	}
	return Verdict{}, nil
}

func (d *detector) CheckRequest(ctx context.Context, identity string, sizeBytes int64) (Verdict, error) {
	requests, err := d.store.IncrementWithWindow(
		ctx,
		counter.Key(RequestRateNamespace, identity),
		d.config.RequestRateWindow,
	)
	if err != nil {
		return Verdict{}, err
	}

	volume, err := d.store.IncrementByWithWindow(
		ctx,
		counter.Key(TrafficVolumeNamespace, identity),
		sizeBytes,
		d.config.TrafficVolumeWindow,
	)
	if err != nil {
		return Verdict{}, err
	}

	// The anomaly signal reads this history later; recording it must not
	// depend on whether a threshold trips below.
	if err := d.store.RangeAppend(
		ctx,
		counter.Key(TrafficHistoryNamespace, identity),
		sizeBytes,
		d.config.AnomalyWindow,
	); err != nil {
		return Verdict{}, err
	}

	if requests > d.config.RequestRateThreshold {
		d.mark(ctx, requestMarkerNamespace, identity, d.config.RequestRateWindow)
		return Verdict{Blocked: true, Signal: SignalRequestRate}, nil
	}
	if volume > d.config.TrafficVolumeThreshold {
		d.mark(ctx, trafficMarkerNamespace, identity, d.config.TrafficVolumeWindow)
		return Verdict{Blocked: true, Signal: SignalTrafficVolume}, nil
	}
	return Verdict{}, nil
}

func (d *detector) DetectAnomaly(ctx context.Context, identity string) (Verdict, error) {
	history, err := d.store.RangeQuery(ctx, counter.Key(TrafficHistoryNamespace, identity))
	if err != nil {
		return Verdict{}, err
	}
	if len(history) < 2 {
		return Verdict{}, nil
	}

	mean := 0.0
	for _, sample := range history {
		mean += float64(sample)
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, sample := range history {
		diff := float64(sample) - mean
		variance += diff * diff
	}
	variance /= float64(len(history) - 1)
	stdDev := math.Sqrt(variance)

	// All samples identical: no deviation to measure, never anomalous.
	if stdDev == 0 {
		return Verdict{}, nil
	}

	latest := float64(history[len(history)-1])
	zScore := (latest - mean) / stdDev
	if math.Abs(zScore) > d.config.AnomalyThreshold {
		d.mark(ctx, anomalyMarkerNamespace, identity, d.config.AnomalyWindow)
		return Verdict{Blocked: true, Signal: SignalAnomaly}, nil
	}
	return Verdict{}, nil
}

func (d *detector) Reset(ctx context.Context, identity string) error {
	return d.store.Delete(ctx,
		counter.Key(ConnectionRateNamespace, identity),
		counter.Key(RequestRateNamespace, identity),
		counter.Key(TrafficVolumeNamespace, identity),
		counter.Key(TrafficHistoryNamespace, identity),
		counter.Key(connectionMarkerNamespace, identity),
		counter.Key(requestMarkerNamespace, identity),
		counter.Key(trafficMarkerNamespace, identity),
		counter.Key(anomalyMarkerNamespace, identity),
	)
}

// mark persists an advisory detection marker for external visibility. The
// marker is not part of the detection decision, so a write failure only
// logs.
func (d *detector) mark(ctx context.Context, namespace, identity string, window time.Duration) {
	key := counter.Key(namespace, identity)
	if err := d.store.Set(ctx, key, d.timeProvider().Unix(), window); err != nil {
		d.logger.WithError(err).WithField("key", key).Warn("failed to persist detection marker")
	}
}
