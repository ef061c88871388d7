// Package mail sends email through a provider-agnostic Mail interface.
// SMTP is the only implementation; it honours context deadlines for the whole
// SMTP conversation.
package mail
