package notification

import (
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/email"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/sms"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/telegram"
	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

// Dependency carries the clients a channel may need. Any client may be nil;
// the channel built on it then reports itself as unconfigured.
type Dependency struct {
	Config     config.Config
	Instrument instrument.Instrumentation
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	UUID       uid.StringID
	Mail       mail.Mail
	SNS        sms.Publisher
	Publisher  messaging.Publisher
}

// New builds the dispatcher with the primary and secondary channels picked
// by notification.primary.driver and notification.secondary.driver.
func New(dep Dependency) (*usecase.Usecase, error) {
	primary, err := newPrimary(dep)
	if err != nil {
		return nil, err
	}

	secondary, err := newSecondary(dep)
	if err != nil {
		return nil, err
	}

	return usecase.New(usecase.Dependency{
		Primary:    primary,
		Secondary:  secondary,
		Config:     dep.Config,
		Goroutine:  dep.Goroutine,
		Instrument: dep.Instrument,
	}), nil
}

func newPrimary(dep Dependency) (*primaryAdapter, error) {
	driver := dep.Config.GetString("notification.primary.driver")

	switch ch := entity.ChannelFromString(driver); ch {
	case entity.ChannelEmail:
		var m *email.Mail
		if dep.Mail != nil {
			m = email.New(dep.Mail, dep.Config.GetString("notification.smtp.from"), dep.UUID, dep.Instrument)
		}
		logChannel("primary", ch, m.Configured())
		return &primaryAdapter{email: m}, nil
	case entity.ChannelSMS:
		var s *sms.SNS
		if dep.SNS != nil {
			s = sms.New(dep.SNS, dep.Config.GetString("notification.sns.sender_id"), dep.Instrument)
		}
		logChannel("primary", ch, s.Configured())
		return &primaryAdapter{sms: s}, nil
	case entity.ChannelNone:
		if driver != "" && driver != "none" {
			return nil, fmt.Errorf("notification: unknown primary driver %q", driver)
		}
		return &primaryAdapter{}, nil
	default:
		return nil, fmt.Errorf("notification: %s cannot be a primary channel", ch)
	}
}

func newSecondary(dep Dependency) (*secondaryAdapter, error) {
	driver := dep.Config.GetString("notification.secondary.driver")

	switch ch := entity.ChannelFromString(driver); ch {
	case entity.ChannelTelegram:
		tg := telegram.New(telegram.Config{
			Token:   dep.Config.GetString("notification.telegram.token"),
			ChatID:  dep.Config.GetString("notification.telegram.chat_id"),
			BaseURL: dep.Config.GetString("notification.telegram.base_url"),
			Timeout: dep.Config.GetMillisecond("notification.telegram.timeout_ms"),
		}, dep.Instrument)
		logChannel("secondary", ch, tg.Configured())
		return &secondaryAdapter{telegram: tg}, nil
	case entity.ChannelMessaging:
		var b *mq.Broker
		if dep.Publisher != nil {
			dest := dep.Config.GetString("notification.messaging.destination")
			if dest == "" {
				dest = event.OTPEventsDestination
			}
			b = mq.New(dep.Publisher, dest, dep.Clock, dep.Instrument)
		}
		logChannel("secondary", ch, b.Configured())
		return &secondaryAdapter{broker: b}, nil
	case entity.ChannelNone:
		if driver != "" && driver != "none" {
			return nil, fmt.Errorf("notification: unknown secondary driver %q", driver)
		}
		return &secondaryAdapter{}, nil
	default:
		return nil, fmt.Errorf("notification: %s cannot be a secondary channel", ch)
	}
}

func logChannel(role string, ch entity.Channel, configured bool) {
	if configured {
		slog.Info("notification channel ready", "role", role, "channel", ch.String())
		return
	}
	slog.Warn("notification channel missing credentials, deliveries will be skipped", "role", role, "channel", ch.String())
}
