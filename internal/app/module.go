package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/notification"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/sms"
	"github.com/shandysiswandi/otpgate/internal/otp"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

// initModules wires optional clients as nil interfaces so modules can tell
// "not configured" apart from a configured client.
func (a *App) initModules() {
	ndep := notification.Dependency{
		Config:     a.config,
		Instrument: a.ins,
		Clock:      a.clock,
		Goroutine:  a.goroutine,
		UUID:       a.uuid,
		Publisher:  a.publisher,
	}
	if a.mail != nil {
		ndep.Mail = mail.Mail(a.mail)
	}
	if a.sns != nil {
		ndep.SNS = sms.Publisher(a.sns)
	}

	dispatcher, err := notification.New(ndep)
	if err != nil {
		slog.Error("failed to init module notification", "error", err)
		os.Exit(1)
	}

	odep := otp.Dependency{
		Config:     a.config,
		Instrument: a.ins,
		Clock:      a.clock,
		Validator:  a.validator,
		Router:     a.router,
		Cron:       a.cron,
		Dispatcher: dispatcher,
	}
	if a.cacheConn != nil {
		odep.Redis = redis.UniversalClient(a.cacheConn)
	}
	if a.dbConn != nil {
		odep.Postgres = store.PGXPool(a.dbConn)
	}
	if a.dynamo != nil {
		odep.Dynamo = store.DynamoAPI(a.dynamo)
	}

	otpStore, err := otp.New(a.ctx, odep)
	if err != nil {
		slog.Error("failed to init module otp", "error", err)
		os.Exit(1)
	}

	a.addCloser("OTPStore", func(context.Context) error {
		return otpStore.Close()
	})
}
