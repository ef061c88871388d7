package store

import (
	"context"
	"errors"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Store with one span per call.
type Instrumented struct {
	next   Store
	driver string
	ins    instrument.Instrumentation
}

func NewInstrumented(next Store, driver string, ins instrument.Instrumentation) *Instrumented {
	if driver == "" {
		driver = DriverMemory
	}
	return &Instrumented{next: next, driver: driver, ins: ins}
}

func (s *Instrumented) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.outbound.store").Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", s.driver),
	))
}

func (s *Instrumented) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Instrumented) Issue(ctx context.Context, sessionID string) (rec *entity.Record, err error) {
	ctx, span := s.startSpan(ctx, "Issue")
	defer func() { s.endSpan(span, err) }()

	return s.next.Issue(ctx, sessionID)
}

func (s *Instrumented) Lookup(ctx context.Context, sessionID string) (rec *entity.Record, err error) {
	ctx, span := s.startSpan(ctx, "Lookup")
	defer func() { s.endSpan(span, err) }()

	return s.next.Lookup(ctx, sessionID)
}

func (s *Instrumented) RecordFailedAttempt(ctx context.Context, sessionID string) (n int, err error) {
	ctx, span := s.startSpan(ctx, "RecordFailedAttempt")
	defer func() { s.endSpan(span, err) }()

	return s.next.RecordFailedAttempt(ctx, sessionID)
}

func (s *Instrumented) Consume(ctx context.Context, sessionID string) (err error) {
	ctx, span := s.startSpan(ctx, "Consume")
	defer func() { s.endSpan(span, err) }()

	return s.next.Consume(ctx, sessionID)
}

func (s *Instrumented) CompareAndConsume(ctx context.Context, sessionID, code string) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "CompareAndConsume")
	defer func() { s.endSpan(span, err) }()

	return s.next.CompareAndConsume(ctx, sessionID, code)
}

func (s *Instrumented) Sweep(ctx context.Context) (n int, err error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer func() {
		span.SetAttributes(attribute.Int("otp.swept", n))
		s.endSpan(span, err)
	}()

	return s.next.Sweep(ctx)
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
