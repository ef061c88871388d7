package inbound

import "time"

type SendRequest struct {
	SessionID string `json:"session_id,omitempty" example:"01J9Z3W6K8M2"`
	Recipient string `json:"recipient,omitempty" example:"jane@example.com"`
}

type DeliveryResponse struct {
	Channel  string `json:"channel,omitempty"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

type SendResponse struct {
	SessionID        string           `json:"session_id"`
	ExpiresAt        time.Time        `json:"expires_at"`
	ExpiresInSeconds int64            `json:"expires_in_seconds"`
	Delivery         DeliveryResponse `json:"delivery"`
}

func (SendResponse) Message() string {
	return "Code sent"
}

type VerifyRequest struct {
	SessionID string `json:"session_id" example:"01J9Z3W6K8M2"`
	Code      string `json:"code" example:"042917"`
}

type VerifyResponse struct {
	Verified bool `json:"verified"`
}

func (VerifyResponse) Message() string {
	return "Code verified"
}
