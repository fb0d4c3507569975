package ruleengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/app/detector"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/NeuralTrust/TrustShield/pkg/infra/reputation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// rulesKey is the sorted set holding the persisted rule set, scored by
// priority.
const rulesKey = "rules"

// ErrDuplicateRule rejects an add whose ID is already in the active set.
var ErrDuplicateRule = errors.New("rule id already exists")

type Config struct {
	// Enabled gates rule evaluation and the rescan loop. Rate limiting and
	// attack detection are unaffected.
	Enabled bool
	// DefaultPriority replaces a zero priority on add and update; priority 0
	// is reserved to mean "unset".
	DefaultPriority int
	// RulesFile optionally seeds an empty store at startup.
	RulesFile      string
	RescanInterval time.Duration
}

// Engine holds the mutable, priority-ordered rule set and evaluates it
// against live traffic. Mutations persist synchronously to the store before
// returning; evaluation reads counters but never increments them.
type Engine interface {
	Load(ctx context.Context) error
	AddRule(ctx context.Context, r rule.Rule) (rule.Rule, error)
	UpdateRule(ctx context.Context, id string, r rule.Rule) (bool, error)
	RemoveRule(ctx context.Context, id string) (bool, error)
	GetRule(id string) (rule.Rule, bool)
	ListRules() []rule.Rule
	Evaluate(ctx context.Context, identity string, sizeBytes int64, userAgent string) []rule.Action
	// Run periodically reloads the persisted rule set so mutations made by
	// other instances take effect here without traffic. It returns when ctx
	// is cancelled.
	Run(ctx context.Context)
}

type EngineOpts struct {
	UuidProvider func() uuid.UUID
}

type engine struct {
	store        counter.Store
	reputation   reputation.Checker
	config       Config
	logger       *logrus.Logger
	uuidProvider func() uuid.UUID

	mu    sync.RWMutex
	rules []rule.Rule
}

func NewEngine(
	store counter.Store,
	reputationChecker reputation.Checker,
	config Config,
	logger *logrus.Logger,
	opts *EngineOpts,
) Engine {
	uuidProvider := uuid.New
	if opts != nil && opts.UuidProvider != nil {
		uuidProvider = opts.UuidProvider
	}
	return &engine{
		store:        store,
		reputation:   reputationChecker,
		config:       config,
		logger:       logger,
		uuidProvider: uuidProvider,
	}
}

// Load pulls the persisted rule set. A malformed set logs and leaves the
// engine running with no rules; rate limiting and detection keep working
// regardless.
func (e *engine) Load(ctx context.Context) error {
	members, err := e.store.SortedRange(ctx, rulesKey)
	if err != nil {
		return err
	}

	loaded := make([]rule.Rule, 0, len(members))
	for _, member := range members {
		var r rule.Rule
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			e.logger.WithError(err).Error("persisted rule set is malformed, starting with no rules")
			loaded = nil
			break
		}
		loaded = append(loaded, r)
	}

	e.mu.Lock()
	e.rules = sortRules(loaded)
	e.mu.Unlock()

	if len(loaded) == 0 && e.config.RulesFile != "" {
		if err := e.seedFromFile(ctx); err != nil {
			e.logger.WithError(err).WithField("file", e.config.RulesFile).
				Error("failed to seed rules from file, starting with no rules")
		}
	}
	return nil
}

func (e *engine) seedFromFile(ctx context.Context) error {
	data, err := os.ReadFile(e.config.RulesFile)
	if err != nil {
		return err
	}
	var seeds []rule.Rule
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("%w: %v", rule.ErrParsing, err)
	}
	for _, seed := range seeds {
		if _, err := e.AddRule(ctx, seed); err != nil {
			return err
		}
	}
	e.logger.WithField("count", len(seeds)).Info("seeded rules from file")
	return nil
}

func (e *engine) AddRule(ctx context.Context, r rule.Rule) (rule.Rule, error) {
	if err := r.Validate(); err != nil {
		return rule.Rule{}, err
	}
	if r.ID == "" {
		r.ID = e.uuidProvider().String()
	}
	if r.Priority == 0 {
		r.Priority = e.config.DefaultPriority
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return rule.Rule{}, fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
		}
	}

	if err := e.persistAdd(ctx, r); err != nil {
		return rule.Rule{}, err
	}
	e.rules = sortRules(append(e.rules, r))
	return r, nil
}

func (e *engine) UpdateRule(ctx context.Context, id string, updated rule.Rule) (bool, error) {
	if err := updated.Validate(); err != nil {
		return false, err
	}
	updated.ID = id
	if updated.Priority == 0 {
		updated.Priority = e.config.DefaultPriority
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.rules {
		if existing.ID != id {
			continue
		}
		// The swap is one store-side step: a failure leaves the persisted
		// set holding the old rule, matching the untouched in-memory table.
		if err := e.persistReplace(ctx, existing, updated); err != nil {
			return false, err
		}
		e.rules[i] = updated
		e.rules = sortRules(e.rules)
		return true, nil
	}
	return false, nil
}

func (e *engine) RemoveRule(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.rules {
		if existing.ID != id {
			continue
		}
		if err := e.persistRemove(ctx, existing); err != nil {
			return false, err
		}
		e.rules = append(e.rules[:i], e.rules[i+1:]...)
		return true, nil
	}
	return false, nil
}

func (e *engine) GetRule(id string) (rule.Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, existing := range e.rules {
		if existing.ID == id {
			return existing, true
		}
	}
	return rule.Rule{}, false
}

func (e *engine) ListRules() []rule.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]rule.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate walks enabled rules in priority order and concatenates the
// actions of every rule whose conditions all hold. A condition that cannot
// be evaluated fails its rule, never the whole pass: one bad rule must not
// block traffic decisions.
func (e *engine) Evaluate(ctx context.Context, identity string, sizeBytes int64, userAgent string) []rule.Action {
	if !e.config.Enabled {
		return nil
	}

	e.mu.RLock()
	snapshot := make([]rule.Rule, len(e.rules))
	copy(snapshot, e.rules)
	e.mu.RUnlock()

	var actions []rule.Action
	for _, r := range snapshot {
		if !r.Enabled {
			continue
		}
		if e.conditionsMet(ctx, r, identity, sizeBytes, userAgent) {
			actions = append(actions, r.Actions...)
		}
	}
	return actions
}

func (e *engine) conditionsMet(ctx context.Context, r rule.Rule, identity string, _ int64, userAgent string) bool {
	for _, condition := range r.Conditions {
		switch c := condition.(type) {
		case rule.RequestRateCondition:
			count, err := e.store.Get(ctx, counter.Key(detector.RequestRateNamespace, identity))
			if err != nil {
				e.logger.WithError(err).WithField("rule_id", r.ID).
					Debug("request rate condition could not be evaluated, skipping rule")
				return false
			}
			if count <= c.Threshold {
				return false
			}
		case rule.TrafficVolumeCondition:
			volume, err := e.store.Get(ctx, counter.Key(detector.TrafficVolumeNamespace, identity))
			if err != nil {
				e.logger.WithError(err).WithField("rule_id", r.ID).
					Debug("traffic volume condition could not be evaluated, skipping rule")
				return false
			}
			if volume <= c.ThresholdBytes {
				return false
			}
		case rule.UserAgentCondition:
			if !strings.Contains(userAgent, c.Pattern) {
				return false
			}
		case rule.IPReputationCondition:
			score, err := e.reputation.Score(ctx, identity)
			if err != nil {
				// Reputation is fail-open by policy: an unreachable scorer
				// must not turn into blanket blocking.
				e.logger.WithError(err).WithField("rule_id", r.ID).
					Debug("reputation lookup failed, using neutral score")
				score = reputation.NeutralScore
			}
			if score < c.MinScore {
				return false
			}
		default:
			e.logger.WithField("rule_id", r.ID).Warn("unknown condition variant, skipping rule")
			return false
		}
	}
	return true
}

func (e *engine) Run(ctx context.Context) {
	interval := e.config.RescanInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("rule rescan loop stopped")
			return
		case <-ticker.C:
			if err := e.resync(ctx); err != nil {
				e.logger.WithError(err).Warn("rule rescan failed")
			}
		}
	}
}

// resync replaces the in-memory table with the persisted set, taking the
// write lock only for the swap.
func (e *engine) resync(ctx context.Context) error {
	members, err := e.store.SortedRange(ctx, rulesKey)
	if err != nil {
		return err
	}
	loaded := make([]rule.Rule, 0, len(members))
	for _, member := range members {
		var r rule.Rule
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return err
		}
		loaded = append(loaded, r)
	}

	e.mu.Lock()
	e.rules = sortRules(loaded)
	e.mu.Unlock()
	return nil
}

func (e *engine) persistAdd(ctx context.Context, r rule.Rule) error {
	member, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return e.store.SortedAdd(ctx, rulesKey, float64(r.Priority), string(member))
}

func (e *engine) persistRemove(ctx context.Context, r rule.Rule) error {
	member, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return e.store.SortedRemove(ctx, rulesKey, string(member))
}

func (e *engine) persistReplace(ctx context.Context, current, updated rule.Rule) error {
	currentMember, err := json.Marshal(current)
	if err != nil {
		return err
	}
	updatedMember, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	return e.store.SortedReplace(ctx, rulesKey, string(currentMember), float64(updated.Priority), string(updatedMember))
}

// sortRules orders by descending priority; the stable sort keeps insertion
// order for equal priorities, so evaluation order is deterministic.
func sortRules(rules []rule.Rule) []rule.Rule {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return rules
}
