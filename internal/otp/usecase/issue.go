package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
)

type IssueInput struct {
	SessionID      string `validate:"omitempty,max=128,printascii"`
	Recipient      string `validate:"omitempty,max=254"`
	IdempotencyKey string `validate:"omitempty,max=128,printascii"`
}

type IssueOutput struct {
	SessionID string
	ExpiresAt time.Time
	ExpiresIn time.Duration
	Delivery  entity.Delivery
}

// Issue stores a fresh code for the session and waits for the primary
// channel to deliver it. A delivery failure withdraws the code.
func (s *Usecase) Issue(ctx context.Context, in IssueInput) (*IssueOutput, error) {
	ctx, span := s.startSpan(ctx, "Issue")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if in.SessionID == "" {
		in.SessionID = s.sessionID.Generate()
	}
	span.SetAttributes(attribute.String("otp.session_id", in.SessionID))

	var out *IssueOutput
	run := func(ctx context.Context) error {
		var err error
		out, err = s.issue(ctx, in)
		return err
	}

	if s.guard == nil || in.IdempotencyKey == "" {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}

	err := s.guard.Exec(ctx, "otp.issue:"+in.IdempotencyKey, run)
	if err == nil {
		return out, nil
	}

	if errors.Is(err, idempotency.ErrAlreadyInProgress) || errors.Is(err, idempotency.ErrAlreadyCompleted) {
		slog.WarnContext(ctx, "duplicate issue request", "idempotency_key", in.IdempotencyKey, "error", err)
		return nil, goerror.NewBusiness("Request with this idempotency key was already processed", goerror.CodeConflict)
	}
	if _, ok := goerror.As(err); ok {
		return nil, err
	}

	slog.ErrorContext(ctx, "failed to guard issue request", "idempotency_key", in.IdempotencyKey, "error", err)
	return nil, goerror.NewServer(err)
}

func (s *Usecase) issue(ctx context.Context, in IssueInput) (*IssueOutput, error) {
	rec, err := s.store.Issue(ctx, in.SessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store issue code", "session_id", in.SessionID, "error", err)
		s.emit(ctx, event.OTPEvent{
			Kind:        event.KindSystemError,
			Stage:       event.StageIssue,
			SessionID:   in.SessionID,
			Timestamp:   s.clock.Now(),
			ErrorDetail: err.Error(),
			Recipient:   in.Recipient,
		})
		return nil, goerror.NewServer(err)
	}

	delivery, err := s.notify.Notify(ctx, event.OTPEvent{
		Kind:      event.KindIssued,
		SessionID: rec.SessionID,
		Code:      rec.Code,
		ExpiresIn: s.ttl,
		Timestamp: s.clock.Now(),
		Recipient: in.Recipient,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver issued code", "session_id", rec.SessionID, "error", err)
		withdrawn, cErr := s.store.CompareAndConsume(context.WithoutCancel(ctx), rec.SessionID, rec.Code)
		if cErr != nil {
			slog.ErrorContext(ctx, "failed to store withdraw undelivered code", "session_id", rec.SessionID, "error", cErr)
		} else if !withdrawn {
			slog.WarnContext(ctx, "undelivered code already replaced or consumed", "session_id", rec.SessionID)
		}
		return nil, goerror.NewServer(err)
	}

	if delivery.Skipped {
		slog.InfoContext(ctx, "issued code was not delivered", "session_id", rec.SessionID, "reason", delivery.Reason)
	}

	return &IssueOutput{
		SessionID: rec.SessionID,
		ExpiresAt: rec.ExpiresAt,
		ExpiresIn: s.ttl,
		Delivery:  *delivery,
	}, nil
}
