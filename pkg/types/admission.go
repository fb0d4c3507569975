package types

import "github.com/NeuralTrust/TrustShield/pkg/domain/rule"

type AdmitConnectionRequest struct {
	Identity string `json:"identity"`
}

type AdmitRequestRequest struct {
	Identity  string `json:"identity"`
	SizeBytes int64  `json:"size_bytes"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AdmitConnectionResponse struct {
	Allow             bool   `json:"allow"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

type AdmitRequestResponse struct {
	Allow             bool            `json:"allow"`
	Reason            string          `json:"reason,omitempty"`
	Remaining         int64           `json:"remaining"`
	RetryAfterSeconds int64           `json:"retry_after_seconds,omitempty"`
	Actions           rule.ActionList `json:"actions,omitempty"`
}
