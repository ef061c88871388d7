// Package otp generates numeric one-time codes.
//
// Codes are drawn uniformly from [0, 10^length) and zero padded, so "004211"
// is a valid six digit code. Randomness comes from crypto/rand and is never
// derived from the session or the clock.
package otp
