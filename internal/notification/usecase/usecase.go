package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type primaryChannel interface {
	Channel() entity.Channel
	Configured() bool
	Send(ctx context.Context, recipient string, msg entity.Message) (string, error)
}

type secondaryChannel interface {
	Channel() entity.Channel
	Configured() bool
	Send(ctx context.Context, msg entity.Message) error
}

type Usecase struct {
	primary   primaryChannel
	secondary secondaryChannel
	cfg       config.Config
	goroutine *goroutine.Manager
	ins       instrument.Instrumentation
	attempts  metric.Int64Counter
}

type Dependency struct {
	Primary    primaryChannel
	Secondary  secondaryChannel
	Config     config.Config
	Goroutine  *goroutine.Manager
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	counter, err := dep.Instrument.Meter("notification.usecase").Int64Counter(
		"notification.dispatch.attempts",
		metric.WithDescription("Primary channel delivery attempts by channel and status."),
	)
	if err != nil {
		slog.Warn("failed to create notification.dispatch.attempts counter", "error", err)
	}

	return &Usecase{
		primary:   dep.Primary,
		secondary: dep.Secondary,
		cfg:       dep.Config,
		goroutine: dep.Goroutine,
		ins:       dep.Instrument,
		attempts:  counter,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}
