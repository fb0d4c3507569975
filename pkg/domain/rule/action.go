package rule

import "fmt"

type ActionType string

const (
	ActionTypeBlock     ActionType = "block"
	ActionTypeRateLimit ActionType = "rate_limit"
	ActionTypeLog       ActionType = "log"
	ActionTypeNotify    ActionType = "notify"
)

// Action is the closed set of rule action variants. Actions from every fired
// rule are concatenated in rule-priority order; precedence between them is
// the caller's decision.
type Action interface {
	Type() ActionType
}

type BlockAction struct {
	DurationSeconds int `json:"duration_seconds" mapstructure:"duration_seconds"`
}

func (BlockAction) Type() ActionType { return ActionTypeBlock }

type RateLimitAction struct {
	RequestsPerSecond int `json:"requests_per_second" mapstructure:"requests_per_second"`
}

func (RateLimitAction) Type() ActionType { return ActionTypeRateLimit }

type LogAction struct {
	Level   string `json:"level" mapstructure:"level"`
	Message string `json:"message" mapstructure:"message"`
}

func (LogAction) Type() ActionType { return ActionTypeLog }

type NotifyAction struct {
	Channel string `json:"channel" mapstructure:"channel"`
	Message string `json:"message" mapstructure:"message"`
}

func (NotifyAction) Type() ActionType { return ActionTypeNotify }

// ParseAction decodes an action from its type tag and parameter map.
func ParseAction(actionType string, params map[string]interface{}) (Action, error) {
	switch ActionType(actionType) {
	case ActionTypeBlock:
		var a BlockAction
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionTypeRateLimit:
		var a RateLimitAction
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionTypeLog:
		var a LogAction
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionTypeNotify:
		var a NotifyAction
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrParsing, actionType)
	}
}
