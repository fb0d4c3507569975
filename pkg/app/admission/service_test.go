package admission

import (
	"context"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/app/detector"
	"github.com/NeuralTrust/TrustShield/pkg/app/ratelimit"
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/NeuralTrust/TrustShield/pkg/infra/notifier"
	"github.com/NeuralTrust/TrustShield/pkg/infra/reputation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) IncrementWithWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, counter.ErrStoreUnavailable
}

func (failingStore) IncrementByWithWindow(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, counter.ErrStoreUnavailable
}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, counter.ErrStoreUnavailable
}

func (failingStore) Set(context.Context, string, int64, time.Duration) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) Delete(context.Context, ...string) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) TimeToLive(context.Context, string) (time.Duration, error) {
	return 0, counter.ErrStoreUnavailable
}

func (failingStore) RangeAppend(context.Context, string, int64, time.Duration) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) RangeQuery(context.Context, string) ([]int64, error) {
	return nil, counter.ErrStoreUnavailable
}

func (failingStore) SortedAdd(context.Context, string, float64, string) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) SortedRemove(context.Context, string, string) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) SortedReplace(context.Context, string, string, float64, string) error {
	return counter.ErrStoreUnavailable
}

func (failingStore) SortedRange(context.Context, string) ([]string, error) {
	return nil, counter.ErrStoreUnavailable
}

type serviceParams struct {
	store           counter.Store
	limit           int64
	connectionLimit int64
	failOpen        bool
}

func newTestService(t *testing.T, params serviceParams) (Service, ruleengine.Engine) {
	t.Helper()
	logger := logrus.New()

	if params.limit == 0 {
		params.limit = 1000
	}
	if params.connectionLimit == 0 {
		params.connectionLimit = 1000
	}

	limiter := ratelimit.NewLimiter(params.store, ratelimit.Config{
		Limit:  params.limit,
		Window: time.Minute,
	}, logger)

	attackDetector := detector.NewDetector(params.store, detector.Config{
		ConnectionRateThreshold: params.connectionLimit,
		ConnectionRateWindow:    time.Minute,
		RequestRateThreshold:    1000,
		RequestRateWindow:       time.Minute,
		TrafficVolumeThreshold:  1 << 30,
		TrafficVolumeWindow:     time.Minute,
		AnomalyThreshold:        3.0,
		AnomalyWindow:           5 * time.Minute,
	}, logger, nil)

	engine := ruleengine.NewEngine(params.store, reputation.NewStaticChecker(reputation.NeutralScore), ruleengine.Config{
		Enabled:         true,
		DefaultPriority: 100,
	}, logger, nil)

	service := NewService(
		limiter,
		attackDetector,
		engine,
		notifier.NewLogNotifier(logger, 100),
		Config{FailOpen: params.failOpen},
		logger,
	)
	return service, engine
}

func TestService_AdmitConnectionAllows(t *testing.T) {
	service, _ := newTestService(t, serviceParams{store: counter.NewMemoryStore(nil)})

	decision, err := service.AdmitConnection(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, ReasonNone, decision.Reason)
}

func TestService_AdmitConnectionDeniesOnDetection(t *testing.T) {
	service, _ := newTestService(t, serviceParams{
		store:           counter.NewMemoryStore(nil),
		connectionLimit: 1,
		// Rate limit would also trip, but detection runs first.
		limit: 1,
	})
	ctx := context.Background()

	_, err := service.AdmitConnection(ctx, "1.2.3.4")
	require.NoError(t, err)

	decision, err := service.AdmitConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, ReasonDDoS, decision.Reason)
}

func TestService_AdmitConnectionDeniesOnRateLimit(t *testing.T) {
	service, _ := newTestService(t, serviceParams{
		store: counter.NewMemoryStore(nil),
		limit: 1,
	})
	ctx := context.Background()

	decision, err := service.AdmitConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, decision.Allow)

	decision, err = service.AdmitConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, ReasonRateLimit, decision.Reason)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestService_AdmitRequestAllowsAndReportsRemaining(t *testing.T) {
	service, _ := newTestService(t, serviceParams{
		store: counter.NewMemoryStore(nil),
		limit: 10,
	})

	decision, err := service.AdmitRequest(context.Background(), "1.2.3.4", 512, "curl/8.0")
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, int64(9), decision.Remaining)
}

func TestService_AdmitRequestDeniesOnBlockAction(t *testing.T) {
	service, engine := newTestService(t, serviceParams{store: counter.NewMemoryStore(nil)})
	ctx := context.Background()

	_, err := engine.AddRule(ctx, rule.Rule{
		Name:       "block bad bots",
		Conditions: []rule.Condition{rule.UserAgentCondition{Pattern: "badbot"}},
		Actions:    []rule.Action{rule.BlockAction{DurationSeconds: 300}},
		Priority:   1,
		Enabled:    true,
	})
	require.NoError(t, err)

	decision, err := service.AdmitRequest(ctx, "1.2.3.4", 512, "badbot/1.0")
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, ReasonRule, decision.Reason)
	assert.Equal(t, 300*time.Second, decision.RetryAfter)

	decision, err = service.AdmitRequest(ctx, "1.2.3.4", 512, "curl/8.0")
	require.NoError(t, err)
	assert.True(t, decision.Allow)
}

func TestService_AdmitRequestReturnsNonBlockingActions(t *testing.T) {
	service, engine := newTestService(t, serviceParams{store: counter.NewMemoryStore(nil)})
	ctx := context.Background()

	_, err := engine.AddRule(ctx, rule.Rule{
		Name:       "throttle scrapers",
		Conditions: []rule.Condition{rule.UserAgentCondition{Pattern: "scraper"}},
		Actions:    []rule.Action{rule.RateLimitAction{RequestsPerSecond: 10}},
		Priority:   1,
		Enabled:    true,
	})
	require.NoError(t, err)

	decision, err := service.AdmitRequest(ctx, "1.2.3.4", 512, "scraper/2.0")
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	require.Len(t, decision.Actions, 1)
	assert.Equal(t, rule.RateLimitAction{RequestsPerSecond: 10}, decision.Actions[0])
}

func TestService_FailClosedSurfacesStoreErrors(t *testing.T) {
	service, _ := newTestService(t, serviceParams{store: failingStore{}})
	ctx := context.Background()

	_, err := service.AdmitConnection(ctx, "1.2.3.4")
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)

	_, err = service.AdmitRequest(ctx, "1.2.3.4", 512, "")
	assert.ErrorIs(t, err, counter.ErrStoreUnavailable)
}

func TestService_FailOpenAdmitsOnStoreErrors(t *testing.T) {
	service, _ := newTestService(t, serviceParams{store: failingStore{}, failOpen: true})
	ctx := context.Background()

	decision, err := service.AdmitConnection(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allow)

	requestDecision, err := service.AdmitRequest(ctx, "1.2.3.4", 512, "")
	require.NoError(t, err)
	assert.True(t, requestDecision.Allow)
}

func TestService_ResetIdentityRestoresQuota(t *testing.T) {
	service, _ := newTestService(t, serviceParams{
		store: counter.NewMemoryStore(nil),
		limit: 1,
	})
	ctx := context.Background()

	decision, err := service.AdmitRequest(ctx, "1.2.3.4", 100, "")
	require.NoError(t, err)
	require.True(t, decision.Allow)

	decision, err = service.AdmitRequest(ctx, "1.2.3.4", 100, "")
	require.NoError(t, err)
	require.False(t, decision.Allow)

	require.NoError(t, service.ResetIdentity(ctx, "1.2.3.4"))

	decision, err = service.AdmitRequest(ctx, "1.2.3.4", 100, "")
	require.NoError(t, err)
	assert.True(t, decision.Allow)
}
