package entity

// Outcome is the result of one verification attempt.
type Outcome int8

const (
	OutcomeExpired Outcome = iota + 1
	OutcomeInvalid
	OutcomeVerified
	OutcomeSystemError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeVerified:
		return "verified"
	case OutcomeSystemError:
		return "system_error"
	default:
		return "unknown"
	}
}
