// Package validator validates request structs.
//
// Usecases depend on the Validator interface; V10Validator is the
// go-playground/validator implementation with English messages keyed by
// snake_case field names.
package validator
