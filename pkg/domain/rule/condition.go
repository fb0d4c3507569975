package rule

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type ConditionType string

const (
	ConditionTypeRequestRate   ConditionType = "request_rate"
	ConditionTypeTrafficVolume ConditionType = "traffic_volume"
	ConditionTypeUserAgent     ConditionType = "user_agent"
	ConditionTypeIPReputation  ConditionType = "ip_reputation"
)

// Condition is the closed set of rule condition variants. A rule fires only
// if every condition evaluates true; a rule with no conditions is vacuously
// true.
type Condition interface {
	Type() ConditionType
}

type RequestRateCondition struct {
	Threshold     int64 `json:"threshold" mapstructure:"threshold"`
	WindowSeconds int   `json:"window_seconds" mapstructure:"window_seconds"`
}

func (RequestRateCondition) Type() ConditionType { return ConditionTypeRequestRate }

type TrafficVolumeCondition struct {
	ThresholdBytes int64 `json:"threshold_bytes" mapstructure:"threshold_bytes"`
	WindowSeconds  int   `json:"window_seconds" mapstructure:"window_seconds"`
}

func (TrafficVolumeCondition) Type() ConditionType { return ConditionTypeTrafficVolume }

// UserAgentCondition matches when the request user agent contains Pattern as
// a substring.
type UserAgentCondition struct {
	Pattern string `json:"pattern" mapstructure:"pattern"`
}

func (UserAgentCondition) Type() ConditionType { return ConditionTypeUserAgent }

type IPReputationCondition struct {
	MinScore float64 `json:"min_score" mapstructure:"min_score"`
}

func (IPReputationCondition) Type() ConditionType { return ConditionTypeIPReputation }

// ParseCondition decodes a condition from its type tag and parameter map.
// Unknown tags are a parsing error.
func ParseCondition(conditionType string, params map[string]interface{}) (Condition, error) {
	switch ConditionType(conditionType) {
	case ConditionTypeRequestRate:
		var c RequestRateCondition
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ConditionTypeTrafficVolume:
		var c TrafficVolumeCondition
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ConditionTypeUserAgent:
		var c UserAgentCondition
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ConditionTypeIPReputation:
		var c IPReputationCondition
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", ErrParsing, conditionType)
	}
}

// decodeParams tolerates the numeric types JSON hands us (float64 for every
// number) the same way plugin settings are decoded.
func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}
	return nil
}
