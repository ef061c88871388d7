package entity

import "time"

// Record is the active code of one session.
type Record struct {
	SessionID string
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// Live reports whether the record can still be used at now.
func (r *Record) Live(now time.Time) bool {
	return r != nil && now.Before(r.ExpiresAt)
}
