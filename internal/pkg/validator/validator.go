package validator

// Validator validates a struct and returns V10ValidationError-like errors.
type Validator interface {
	Validate(data any) error
}
