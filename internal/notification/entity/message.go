package entity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const redacted = "******"

// TimeLayout is used for every timestamp rendered into a message.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Field is one label/value line of a rendered message.
type Field struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Sensitive bool   `json:"-"`
}

// Message is the channel-agnostic rendering of an event.
type Message struct {
	// Type groups kinds the way receivers filter them: otp_sent, otp_attempt, otp_error.
	Type      string     `json:"type"`
	Kind      event.Kind `json:"-"`
	Subject   string     `json:"subject"`
	SessionID string     `json:"session_id"`
	Fields    []Field    `json:"fields"`
}

// Redacted returns a copy with sensitive values masked.
func (m Message) Redacted() Message {
	out := m
	out.Fields = make([]Field, len(m.Fields))
	for i, f := range m.Fields {
		if f.Sensitive && f.Value != "" {
			f.Value = redacted
		}
		out.Fields[i] = f
	}
	return out
}

// Render maps ev into an ordered list of fields with a subject per kind.
func Render(ev event.OTPEvent) Message {
	ts := formatTime(ev.Timestamp)
	session := Field{Label: "session_id", Value: ev.SessionID}
	entered := Field{Label: "entered_code", Value: ev.EnteredCode, Sensitive: true}

	switch ev.Kind {
	case event.KindIssued:
		return Message{Type: "otp_sent", Kind: ev.Kind, Subject: "Access Code Generated", SessionID: ev.SessionID, Fields: []Field{
			session,
			{Label: "access_code", Value: ev.Code, Sensitive: true},
			{Label: "expires_in", Value: humanizeDuration(ev.ExpiresIn)},
			{Label: "time", Value: ts},
		}}
	case event.KindAttemptExpired:
		return Message{Type: "otp_attempt", Kind: ev.Kind, Subject: "OTP Attempt - Expired Code", SessionID: ev.SessionID, Fields: []Field{
			session,
			entered,
			{Label: "result", Value: "EXPIRED"},
			{Label: "time", Value: ts},
		}}
	case event.KindAttemptInvalid:
		return Message{Type: "otp_attempt", Kind: ev.Kind, Subject: "OTP Attempt - Invalid Code", SessionID: ev.SessionID, Fields: []Field{
			session,
			entered,
			{Label: "attempts", Value: strconv.Itoa(ev.Attempts)},
			{Label: "result", Value: "INVALID"},
			{Label: "time", Value: ts},
		}}
	case event.KindAttemptVerified:
		return Message{Type: "otp_attempt", Kind: ev.Kind, Subject: "OTP Attempt - Verified", SessionID: ev.SessionID, Fields: []Field{
			session,
			entered,
			{Label: "result", Value: "VERIFIED"},
			{Label: "verified_at", Value: ts},
		}}
	default:
		subject := "OTP Verification Error"
		if ev.Stage == event.StageIssue {
			subject = "OTP Generation Failed"
		}
		return Message{Type: "otp_error", Kind: event.KindSystemError, Subject: subject, SessionID: ev.SessionID, Fields: []Field{
			session,
			entered,
			{Label: "error", Value: ev.ErrorDetail},
			{Label: "time", Value: ts},
		}}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d.Round(time.Second)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
