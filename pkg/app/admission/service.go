package admission

import (
	"context"
	"errors"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/app/detector"
	"github.com/NeuralTrust/TrustShield/pkg/app/ratelimit"
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/NeuralTrust/TrustShield/pkg/infra/notifier"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

// Reason is the machine-readable denial cause carried by every deny verdict.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonDDoS      Reason = "ddos"
	ReasonRateLimit Reason = "rate_limit"
	ReasonRule      Reason = "rule"
)

type ConnectionDecision struct {
	Allow      bool
	Reason     Reason
	RetryAfter time.Duration
}

type RequestDecision struct {
	Allow      bool
	Reason     Reason
	Remaining  int64
	RetryAfter time.Duration
	Actions    []rule.Action
}

type Config struct {
	// FailOpen decides what happens when the counter store is unreachable:
	// true admits traffic unprotected (logged and counted, never silent),
	// false surfaces the fault to the API boundary as a 5xx-class outcome.
	FailOpen bool
}

// Service is the composition point: every inbound unit of work runs the
// attack detector, the rate limiter and the rule engine in that fixed order
// and gets one aggregated verdict. The three engines stay independent; only
// this layer reconciles them.
type Service interface {
	AdmitConnection(ctx context.Context, identity string) (ConnectionDecision, error)
	AdmitRequest(ctx context.Context, identity string, sizeBytes int64, userAgent string) (RequestDecision, error)
	// ResetIdentity restores a clean slate: rate limit quota and all
	// detection signals.
	ResetIdentity(ctx context.Context, identity string) error
}

type service struct {
	limiter  ratelimit.Limiter
	detector detector.Detector
	rules    ruleengine.Engine
	notifier notifier.Notifier
	config   Config
	logger   *logrus.Logger
}

func NewService(
	limiter ratelimit.Limiter,
	attackDetector detector.Detector,
	ruleEngine ruleengine.Engine,
	actionNotifier notifier.Notifier,
	config Config,
	logger *logrus.Logger,
) Service {
	return &service{
		limiter:  limiter,
		detector: attackDetector,
		rules:    ruleEngine,
		notifier: actionNotifier,
		config:   config,
		logger:   logger,
	}
}

func (s *service) AdmitConnection(ctx context.Context, identity string) (ConnectionDecision, error) {
	verdict, err := s.detector.CheckConnection(ctx, identity)
	if err != nil {
		return s.connectionFailure(err)
	}
	if verdict.Blocked {
		prometheus.DetectionSignalsTotal.WithLabelValues(string(verdict.Signal)).Inc()
		return s.denyConnection(ReasonDDoS, 0), nil
	}

	if err := s.limiter.Check(ctx, identity); err != nil {
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			retryAfter, ttlErr := s.limiter.ResetTime(ctx, identity)
			if ttlErr != nil {
				retryAfter = 0
			}
			return s.denyConnection(ReasonRateLimit, retryAfter), nil
		}
		return s.connectionFailure(err)
	}

	prometheus.AdmissionDecisionsTotal.WithLabelValues("connection", "allow", "").Inc()
	return ConnectionDecision{Allow: true}, nil
}

func (s *service) AdmitRequest(ctx context.Context, identity string, sizeBytes int64, userAgent string) (RequestDecision, error) {
	verdict, err := s.detector.CheckRequest(ctx, identity, sizeBytes)
	if err != nil {
		return s.requestFailure(err)
	}
	if verdict.Blocked {
		prometheus.DetectionSignalsTotal.WithLabelValues(string(verdict.Signal)).Inc()
		return s.denyRequest(ReasonDDoS, 0, 0, nil), nil
	}

	// Anomaly detection is the expensive signal; it only runs once the
	// threshold checks pass.
	verdict, err = s.detector.DetectAnomaly(ctx, identity)
	if err != nil {
		return s.requestFailure(err)
	}
	if verdict.Blocked {
		prometheus.DetectionSignalsTotal.WithLabelValues(string(verdict.Signal)).Inc()
		return s.denyRequest(ReasonDDoS, 0, 0, nil), nil
	}

	if err := s.limiter.Check(ctx, identity); err != nil {
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			retryAfter, ttlErr := s.limiter.ResetTime(ctx, identity)
			if ttlErr != nil {
				retryAfter = 0
			}
			return s.denyRequest(ReasonRateLimit, 0, retryAfter, nil), nil
		}
		return s.requestFailure(err)
	}

	actions := s.rules.Evaluate(ctx, identity, sizeBytes, userAgent)
	blockFor := s.dispatchActions(ctx, identity, actions)
	if blockFor > 0 {
		return s.denyRequest(ReasonRule, 0, blockFor, actions), nil
	}

	remaining, err := s.limiter.Remaining(ctx, identity)
	if err != nil {
		// Remaining is advisory; a failed read must not flip an allow.
		remaining = 0
	}

	prometheus.AdmissionDecisionsTotal.WithLabelValues("request", "allow", "").Inc()
	return RequestDecision{Allow: true, Remaining: remaining, Actions: actions}, nil
}

func (s *service) ResetIdentity(ctx context.Context, identity string) error {
	if err := s.limiter.Reset(ctx, identity); err != nil {
		return err
	}
	return s.detector.Reset(ctx, identity)
}

// dispatchActions executes Log and Notify side effects and reports the block
// duration if any Block action fired. RateLimit actions are returned to the
// caller untouched; precedence between actions is decided here, not in the
// rule engine.
func (s *service) dispatchActions(ctx context.Context, identity string, actions []rule.Action) time.Duration {
	var blockFor time.Duration
	for _, action := range actions {
		prometheus.RuleActionsTotal.WithLabelValues(string(action.Type())).Inc()
		switch a := action.(type) {
		case rule.BlockAction:
			if blockFor == 0 {
				blockFor = time.Duration(a.DurationSeconds) * time.Second
			}
		case rule.LogAction:
			s.logAction(identity, a)
		case rule.NotifyAction:
			s.notifier.Notify(ctx, a.Channel, a.Message)
		case rule.RateLimitAction:
			// Returned for the caller to apply downstream.
		}
	}
	return blockFor
}

func (s *service) logAction(identity string, a rule.LogAction) {
	entry := s.logger.WithFields(logrus.Fields{
		"identity": identity,
		"source":   "rule_action",
	})
	switch a.Level {
	case "debug":
		entry.Debug(a.Message)
	case "warn", "warning":
		entry.Warn(a.Message)
	case "error":
		entry.Error(a.Message)
	default:
		entry.Info(a.Message)
	}
}

func (s *service) denyConnection(reason Reason, retryAfter time.Duration) ConnectionDecision {
	prometheus.AdmissionDecisionsTotal.WithLabelValues("connection", "deny", string(reason)).Inc()
	return ConnectionDecision{Allow: false, Reason: reason, RetryAfter: retryAfter}
}

func (s *service) denyRequest(reason Reason, remaining int64, retryAfter time.Duration, actions []rule.Action) RequestDecision {
	prometheus.AdmissionDecisionsTotal.WithLabelValues("request", "deny", string(reason)).Inc()
	return RequestDecision{
		Allow:      false,
		Reason:     reason,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		Actions:    actions,
	}
}

func (s *service) connectionFailure(err error) (ConnectionDecision, error) {
	prometheus.StoreFailuresTotal.Inc()
	if s.config.FailOpen {
		s.logger.WithError(err).Warn("counter store unavailable, admitting connection per fail-open policy")
		prometheus.AdmissionDecisionsTotal.WithLabelValues("connection", "allow", "fail_open").Inc()
		return ConnectionDecision{Allow: true}, nil
	}
	return ConnectionDecision{}, err
}

func (s *service) requestFailure(err error) (RequestDecision, error) {
	prometheus.StoreFailuresTotal.Inc()
	if s.config.FailOpen {
		s.logger.WithError(err).Warn("counter store unavailable, admitting request per fail-open policy")
		prometheus.AdmissionDecisionsTotal.WithLabelValues("request", "allow", "fail_open").Inc()
		return RequestDecision{Allow: true}, nil
	}
	return RequestDecision{}, err
}
