// Package store keeps one active code per session.
//
// Every driver treats a record whose ExpiresAt is not after the current time
// as absent, whether or not it was purged yet. Backend failures are wrapped
// in ErrUnavailable.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
)

// DefaultTTL is the lifetime of an issued code.
const DefaultTTL = 5 * time.Minute

// ErrUnavailable reports that the backing store could not serve the call.
var ErrUnavailable = errors.New("store: unavailable")

// Store is the code store contract shared by every driver.
type Store interface {
	// Issue replaces any record of sessionID with a fresh code.
	Issue(ctx context.Context, sessionID string) (*entity.Record, error)
	// Lookup returns the live record or goerror.ErrNotFound.
	Lookup(ctx context.Context, sessionID string) (*entity.Record, error)
	// RecordFailedAttempt increments the attempt counter of the live record
	// and returns the new value, or 0 when there is none.
	RecordFailedAttempt(ctx context.Context, sessionID string) (int, error)
	// Consume deletes the record. Deleting nothing is not an error.
	Consume(ctx context.Context, sessionID string) error
	// CompareAndConsume deletes the record only when it is live and holds
	// code. Among concurrent callers at most one gets true.
	CompareAndConsume(ctx context.Context, sessionID, code string) (bool, error)
	// Sweep purges expired records and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Options are shared by every driver.
type Options struct {
	Generator *otp.Generator
	Clock     clock.Clocker
	TTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Generator == nil {
		o.Generator = otp.NewGenerator(otp.DefaultLength)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
