package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// NeutralScore is substituted whenever a lookup cannot complete: reputation
// is a fail-open signal by policy.
const NeutralScore = 5.0

// Checker resolves an identity to a reputation score. Higher is more
// trustworthy.
type Checker interface {
	Score(ctx context.Context, identity string) (float64, error)
}

// StaticChecker always returns the same score. It is the default when no
// reputation endpoint is configured.
type StaticChecker struct {
	score float64
}

func NewStaticChecker(score float64) *StaticChecker {
	return &StaticChecker{score: score}
}

func (c *StaticChecker) Score(_ context.Context, _ string) (float64, error) {
	return c.score, nil
}

// HTTPChecker queries an external scoring endpoint. Calls run through a
// circuit breaker so a dead endpoint stops costing a timeout per rule
// evaluation.
type HTTPChecker struct {
	client  *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

func NewHTTPChecker(baseURL string, timeout time.Duration, logger *logrus.Logger) *HTTPChecker {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ip_reputation",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("reputation circuit breaker state changed")
		},
	})
	return &HTTPChecker{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		breaker: breaker,
		logger:  logger,
	}
}

func (c *HTTPChecker) Score(ctx context.Context, identity string) (float64, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.lookup(ctx, identity)
	})
	if err != nil {
		return 0, err
	}
	score, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected reputation result type %T", result)
	}
	return score, nil
}

func (c *HTTPChecker) lookup(ctx context.Context, identity string) (float64, error) {
	endpoint := fmt.Sprintf("%s?identity=%s", c.baseURL, url.QueryEscape(identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reputation lookup returned status %d", resp.StatusCode)
	}
	var body scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("malformed reputation response: %w", err)
	}
	return body.Score, nil
}
