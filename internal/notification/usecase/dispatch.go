package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultMaxAttempts      = 3
	defaultBackoffUnit      = 500 * time.Millisecond
	defaultSecondaryTimeout = 10 * time.Second

	ReasonMissingCredentials = "missing credentials"
	ReasonMissingRecipient   = "missing recipient"
)

// LinearBackoff waits unit*n before retry n and stops after maxAttempts calls
// in total, so there is no wait after the last attempt.
func LinearBackoff(unit time.Duration, maxAttempts int) retry.Backoff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var n atomic.Int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		return unit * time.Duration(n.Add(1)), false
	})

	return retry.WithMaxRetries(uint64(maxAttempts-1), linear)
}

// Dispatch renders ev, fires the secondary channel without waiting and
// delivers to the primary channel with retries.
//
// A *entity.DispatchError is returned when every primary attempt failed.
func (s *Usecase) Dispatch(ctx context.Context, ev event.OTPEvent) (*entity.Result, error) {
	ctx, span := s.startSpan(ctx, "Dispatch")
	defer span.End()

	msg := entity.Render(ev)
	span.SetAttributes(attribute.String("event.kind", ev.Kind.String()))

	s.dispatchSecondary(ctx, msg)

	if s.primary == nil || !s.primary.Configured() {
		slog.InfoContext(ctx, "primary channel skipped", "event", ev.Kind.String(), "reason", ReasonMissingCredentials)
		return &entity.Result{Channel: entity.ChannelNone, Skipped: true, Reason: ReasonMissingCredentials}, nil
	}

	ch := s.primary.Channel()
	recipient := strings.TrimSpace(ev.Recipient)
	if recipient == "" {
		recipient = strings.TrimSpace(s.cfg.GetString("notification.primary.recipient"))
	}
	if recipient == "" {
		slog.InfoContext(ctx, "primary channel skipped", "event", ev.Kind.String(), "channel", ch.String(), "reason", ReasonMissingRecipient)
		return &entity.Result{Channel: ch, Skipped: true, Reason: ReasonMissingRecipient}, nil
	}

	maxAttempts := s.cfg.GetInt("notification.retry.max_attempts")
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	unit := s.cfg.GetMillisecond("notification.retry.backoff_unit_ms")
	if unit <= 0 {
		unit = defaultBackoffUnit
	}

	attempts := 0
	var lastErr error
	receipt, err := retry.DoValue(ctx, LinearBackoff(unit, maxAttempts), func(ctx context.Context) (string, error) {
		attempts++
		id, err := s.primary.Send(ctx, recipient, msg)
		if err != nil {
			lastErr = err
			s.countAttempt(ctx, ch, "failed")
			slog.WarnContext(ctx, "primary channel attempt failed", "channel", ch.String(), "attempt", attempts, "max_attempts", maxAttempts, "error", err)
			return "", retry.RetryableError(err)
		}

		s.countAttempt(ctx, ch, "sent")
		return id, nil
	})
	if err != nil {
		if lastErr == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lastErr = errors.Join(lastErr, err)
		}

		dErr := &entity.DispatchError{Channel: ch, Attempts: attempts, Err: lastErr}
		span.RecordError(dErr)
		span.SetStatus(codes.Error, dErr.Error())
		slog.ErrorContext(ctx, "failed to deliver notification", "event", ev.Kind.String(), "channel", ch.String(), "attempts", attempts, "error", lastErr)
		return nil, dErr
	}

	return &entity.Result{Channel: ch, Receipt: receipt, Attempts: attempts}, nil
}

func (s *Usecase) dispatchSecondary(ctx context.Context, msg entity.Message) {
	if s.secondary == nil || !s.secondary.Configured() {
		slog.DebugContext(ctx, "secondary channel skipped", "subject", msg.Subject)
		return
	}

	if !s.cfg.IsSet("notification.secondary.redact_codes") || s.cfg.GetBool("notification.secondary.redact_codes") {
		msg = msg.Redacted()
	}

	timeout := s.cfg.GetMillisecond("notification.secondary.timeout_ms")
	if timeout <= 0 {
		timeout = defaultSecondaryTimeout
	}

	ch := s.secondary.Channel()
	bg := context.WithoutCancel(ctx)
	s.goroutine.Go(bg, "notification.secondary."+ch.String(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := s.secondary.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "secondary channel failed", "channel", ch.String(), "subject", msg.Subject, "error", err)
			return nil
		}

		slog.DebugContext(ctx, "secondary channel sent", "channel", ch.String(), "subject", msg.Subject)
		return nil
	})
}

func (s *Usecase) countAttempt(ctx context.Context, ch entity.Channel, status string) {
	if s.attempts == nil {
		return
	}

	s.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", ch.String()),
		attribute.String("status", status),
	))
}
