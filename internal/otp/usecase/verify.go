package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type VerifyInput struct {
	SessionID string `validate:"required,max=128,printascii"`
	Code      string `validate:"required,digits"`
}

type VerifyOutput struct {
	Verified bool
	Message  string
	Outcome  entity.Outcome
}

// Verify decides the outcome of one submitted code. Notifications go out
// after the store has been mutated and never change the outcome.
func (s *Usecase) Verify(ctx context.Context, in VerifyInput) (*VerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "Verify")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	span.SetAttributes(attribute.String("otp.session_id", in.SessionID))

	out, err := s.verify(ctx, in)
	outcome := entity.OutcomeSystemError
	if out != nil {
		outcome = out.Outcome
	}
	span.SetAttributes(attribute.String("otp.outcome", outcome.String()))
	s.countOutcome(ctx, outcome)

	return out, err
}

func (s *Usecase) verify(ctx context.Context, in VerifyInput) (*VerifyOutput, error) {
	ev := event.OTPEvent{SessionID: in.SessionID, EnteredCode: in.Code}

	rec, err := s.store.Lookup(ctx, in.SessionID)
	if errors.Is(err, goerror.ErrNotFound) {
		return s.expired(ctx, ev), nil
	}
	if err != nil {
		return nil, s.systemError(ctx, ev, "lookup", err)
	}

	if rec.Code != in.Code {
		attempts, err := s.store.RecordFailedAttempt(ctx, in.SessionID)
		if err != nil {
			return nil, s.systemError(ctx, ev, "record failed attempt", err)
		}

		slog.InfoContext(ctx, "otp rejected", "session_id", in.SessionID, "outcome", entity.OutcomeInvalid.String(), "attempts", attempts)
		ev.Kind = event.KindAttemptInvalid
		ev.Attempts = attempts
		ev.Timestamp = s.clock.Now()
		s.emit(ctx, ev)

		return &VerifyOutput{Message: MessageRejected, Outcome: entity.OutcomeInvalid}, nil
	}

	ok, err := s.store.CompareAndConsume(ctx, in.SessionID, in.Code)
	if err != nil {
		return nil, s.systemError(ctx, ev, "compare and consume", err)
	}
	if !ok {
		// lost to a concurrent verify or re-issue
		return s.expired(ctx, ev), nil
	}

	slog.InfoContext(ctx, "otp verified", "session_id", in.SessionID)
	ev.Kind = event.KindAttemptVerified
	ev.Timestamp = s.clock.Now()
	s.emit(ctx, ev)

	return &VerifyOutput{Verified: true, Message: MessageVerified, Outcome: entity.OutcomeVerified}, nil
}

func (s *Usecase) expired(ctx context.Context, ev event.OTPEvent) *VerifyOutput {
	slog.InfoContext(ctx, "otp rejected", "session_id", ev.SessionID, "outcome", entity.OutcomeExpired.String())

	ev.Kind = event.KindAttemptExpired
	ev.Timestamp = s.clock.Now()
	s.emit(ctx, ev)

	return &VerifyOutput{Message: MessageRejected, Outcome: entity.OutcomeExpired}
}

func (s *Usecase) systemError(ctx context.Context, ev event.OTPEvent, op string, err error) error {
	slog.ErrorContext(ctx, "failed to store "+op, "session_id", ev.SessionID, "error", err)

	ev.Kind = event.KindSystemError
	ev.Stage = event.StageVerify
	ev.Timestamp = s.clock.Now()
	ev.ErrorDetail = err.Error()
	s.emit(ctx, ev)

	return goerror.NewServer(err)
}

func (s *Usecase) countOutcome(ctx context.Context, o entity.Outcome) {
	if s.outcomes == nil {
		return
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", o.String())))
}
