package rule

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParsing marks a malformed rule payload, either from the API or from the
// persisted rule set.
var ErrParsing = errors.New("rule parsing error")

// Rule is an operator-defined condition/action pair. Rules are evaluated in
// descending priority order; all conditions must hold for the actions to
// fire.
type Rule struct {
	ID          string
	Name        string
	Description string
	Conditions  []Condition
	Actions     []Action
	Priority    int
	Enabled     bool
}

type conditionEnvelope struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

type actionEnvelope struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

type ruleJSON struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Conditions  []conditionEnvelope `json:"conditions"`
	Actions     []actionEnvelope    `json:"actions"`
	Priority    int                 `json:"priority"`
	Enabled     bool                `json:"enabled"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Conditions:  make([]conditionEnvelope, 0, len(r.Conditions)),
		Actions:     make([]actionEnvelope, 0, len(r.Actions)),
		Priority:    r.Priority,
		Enabled:     r.Enabled,
	}
	for _, c := range r.Conditions {
		params, err := toParams(c)
		if err != nil {
			return nil, err
		}
		out.Conditions = append(out.Conditions, conditionEnvelope{Type: string(c.Type()), Params: params})
	}
	for _, a := range r.Actions {
		params, err := toParams(a)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, actionEnvelope{Type: string(a.Type()), Params: params})
	}
	return json.Marshal(out)
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}
	parsed := Rule{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Priority:    in.Priority,
		Enabled:     in.Enabled,
	}
	for _, env := range in.Conditions {
		condition, err := ParseCondition(env.Type, env.Params)
		if err != nil {
			return err
		}
		parsed.Conditions = append(parsed.Conditions, condition)
	}
	for _, env := range in.Actions {
		action, err := ParseAction(env.Type, env.Params)
		if err != nil {
			return err
		}
		parsed.Actions = append(parsed.Actions, action)
	}
	*r = parsed
	return nil
}

// ActionList marshals a slice of actions in their wire envelope form, the
// same shape they take inside a rule payload.
type ActionList []Action

func (l ActionList) MarshalJSON() ([]byte, error) {
	out := make([]actionEnvelope, 0, len(l))
	for _, a := range l {
		params, err := toParams(a)
		if err != nil {
			return nil, err
		}
		out = append(out, actionEnvelope{Type: string(a.Type()), Params: params})
	}
	return json.Marshal(out)
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var envelopes []actionEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}
	parsed := make(ActionList, 0, len(envelopes))
	for _, env := range envelopes {
		action, err := ParseAction(env.Type, env.Params)
		if err != nil {
			return err
		}
		parsed = append(parsed, action)
	}
	*l = parsed
	return nil
}

func toParams(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	params := make(map[string]interface{})
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate rejects rules that cannot be evaluated.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrParsing)
	}
	for _, c := range r.Conditions {
		switch v := c.(type) {
		case RequestRateCondition:
			if v.Threshold <= 0 {
				return fmt.Errorf("%w: request_rate threshold must be positive", ErrParsing)
			}
		case TrafficVolumeCondition:
			if v.ThresholdBytes <= 0 {
				return fmt.Errorf("%w: traffic_volume threshold must be positive", ErrParsing)
			}
		case UserAgentCondition:
			if v.Pattern == "" {
				return fmt.Errorf("%w: user_agent pattern is required", ErrParsing)
			}
		}
	}
	for _, a := range r.Actions {
		switch v := a.(type) {
		case BlockAction:
			if v.DurationSeconds <= 0 {
				return fmt.Errorf("%w: block duration must be positive", ErrParsing)
			}
		case RateLimitAction:
			if v.RequestsPerSecond <= 0 {
				return fmt.Errorf("%w: rate_limit requests_per_second must be positive", ErrParsing)
			}
		}
	}
	return nil
}
