package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MessageRejected is returned for both expired and invalid codes so callers
// cannot tell whether a session ever existed.
const MessageRejected = "Invalid or expired code"

const MessageVerified = "Code verified"

type repoStore interface {
	Issue(ctx context.Context, sessionID string) (*entity.Record, error)
	Lookup(ctx context.Context, sessionID string) (*entity.Record, error)
	RecordFailedAttempt(ctx context.Context, sessionID string) (int, error)
	Consume(ctx context.Context, sessionID string) error
	CompareAndConsume(ctx context.Context, sessionID, code string) (bool, error)
	Sweep(ctx context.Context) (int, error)
}

type repoNotify interface {
	Notify(ctx context.Context, ev event.OTPEvent) (*entity.Delivery, error)
}

type Usecase struct {
	store     repoStore
	notify    repoNotify
	guard     idempotency.Guard
	clock     clock.Clocker
	sessionID uid.StringID
	validator validator.Validator
	ins       instrument.Instrumentation
	ttl       time.Duration
	outcomes  metric.Int64Counter
}

type Dependency struct {
	Store  repoStore
	Notify repoNotify
	// Guard is optional; without it idempotency keys are ignored.
	Guard      idempotency.Guard
	Clock      clock.Clocker
	SessionID  uid.StringID
	Validator  validator.Validator
	Instrument instrument.Instrumentation
	TTL        time.Duration
}

func New(dep Dependency) *Usecase {
	counter, err := dep.Instrument.Meter("otp.usecase").Int64Counter(
		"otp.verify.outcomes",
		metric.WithDescription("Verification attempts by outcome."),
	)
	if err != nil {
		slog.Warn("failed to create otp.verify.outcomes counter", "error", err)
	}

	return &Usecase{
		store:     dep.Store,
		notify:    dep.Notify,
		guard:     dep.Guard,
		clock:     dep.Clock,
		sessionID: dep.SessionID,
		validator: dep.Validator,
		ins:       dep.Instrument,
		ttl:       dep.TTL,
		outcomes:  counter,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

// emit sends ev and only logs a failure.
func (s *Usecase) emit(ctx context.Context, ev event.OTPEvent) {
	if _, err := s.notify.Notify(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to notify otp event", "event", ev.Kind.String(), "session_id", ev.SessionID, "error", err)
	}
}
