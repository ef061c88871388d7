package otp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	notifentity "github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/inbound"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/notify"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	pkgotp "github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.OTPEvent) (*notifentity.Result, error)
}

// Dependency carries what the module needs. Redis, Postgres and Dynamo are
// optional; only the client of the configured store driver must be set.
// Without Redis, idempotency keys are ignored.
type Dependency struct {
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Cron       *cron.Cron                 `validate:"required"`
	Dispatcher Dispatcher                 `validate:"required"`
	Redis      redis.UniversalClient
	Postgres   store.PGXPool
	Dynamo     store.DynamoAPI
}

// New builds the store, registers the HTTP routes and the sweep job, and
// returns the store so the caller can close it on shutdown.
func New(ctx context.Context, dep Dependency) (io.Closer, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	sessionID, err := uid.NewStringID(
		dep.Config.GetString("modules.otp.session_id"),
		dep.Config.GetInt64("modules.otp.snowflake_node"),
	)
	if err != nil {
		return nil, err
	}

	gen := pkgotp.NewGenerator(dep.Config.GetInt("modules.otp.code_length"))
	ttl := dep.Config.GetSecond("modules.otp.ttl_seconds")
	if ttl <= 0 {
		ttl = store.DefaultTTL
	}

	driver := strings.ToLower(strings.TrimSpace(dep.Config.GetString("modules.otp.store.driver")))
	raw, err := store.NewFromDriver(driver, store.Backends{
		Redis:       dep.Redis,
		RedisPrefix: dep.Config.GetString("modules.otp.store.redis_prefix"),
		Postgres:    dep.Postgres,
		Dynamo:      dep.Dynamo,
		DynamoTable: dep.Config.GetString("modules.otp.store.dynamodb_table"),
	}, store.Options{Generator: gen, Clock: dep.Clock, TTL: ttl})
	if err != nil {
		return nil, err
	}

	if dep.Config.GetBool("modules.otp.store.auto_migrate") {
		if err := migrate(ctx, raw); err != nil {
			return nil, err
		}
	}

	st := store.NewInstrumented(raw, driver, dep.Instrument)

	var guard idempotency.Guard
	if dep.Redis != nil {
		guard = idempotency.New(dep.Redis, dep.Config.GetString("modules.otp.idempotency_prefix"))
	}

	uc := usecase.New(usecase.Dependency{
		Store:      st,
		Notify:     notify.New(dep.Dispatcher),
		Guard:      guard,
		Clock:      dep.Clock,
		SessionID:  sessionID,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
		TTL:        ttl,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	if needsSweep(driver) {
		if err := inbound.RegisterCron(dep.Cron, dep.Config.GetString("modules.otp.sweep_cron"), uc); err != nil {
			return nil, fmt.Errorf("otp: schedule sweep: %w", err)
		}
	}

	slog.Info("otp module ready", "store", driver, "code_length", gen.Length(), "ttl", ttl.String(), "idempotency", guard != nil)

	return st, nil
}

// needsSweep reports whether the driver lacks native expiry.
func needsSweep(driver string) bool {
	switch driver {
	case "", store.DriverMemory, store.DriverPostgres:
		return true
	default:
		return false
	}
}

func migrate(ctx context.Context, st store.Store) error {
	switch s := st.(type) {
	case *store.Postgres:
		if err := s.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("otp: ensure postgres schema: %w", err)
		}
	case *store.Dynamo:
		if err := s.EnsureTable(ctx); err != nil {
			return fmt.Errorf("otp: ensure dynamodb table: %w", err)
		}
	}
	return nil
}
