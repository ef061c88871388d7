// Package event holds payloads exchanged between modules.
package event

import "time"

// OTPEventsDestination is the broker topic for OTP lifecycle events.
const OTPEventsDestination string = "otp_events"

// Kind identifies an OTP lifecycle event.
type Kind int

const (
	KindUnknown Kind = iota
	KindIssued
	KindAttemptExpired
	KindAttemptInvalid
	KindAttemptVerified
	KindSystemError
)

func (k Kind) String() string {
	switch k {
	case KindIssued:
		return "issued"
	case KindAttemptExpired:
		return "attempt_expired"
	case KindAttemptInvalid:
		return "attempt_invalid"
	case KindAttemptVerified:
		return "attempt_verified"
	case KindSystemError:
		return "system_error"
	default:
		return "unknown"
	}
}

// Stage tells which flow raised a SystemError.
type Stage string

const (
	StageIssue  Stage = "issue"
	StageVerify Stage = "verify"
)

// OTPEvent reports one step of a code's lifecycle. Zero values mean "not
// applicable" and render as empty.
type OTPEvent struct {
	Kind        Kind
	Stage       Stage
	SessionID   string
	Code        string
	EnteredCode string
	Attempts    int
	ExpiresIn   time.Duration
	Timestamp   time.Time
	ErrorDetail string
	// Recipient overrides the configured primary recipient.
	Recipient string
}
