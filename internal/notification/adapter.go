package notification

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/email"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/sms"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/telegram"
)

// primaryAdapter holds at most one primary channel. The concrete pointers are
// kept apart so a nil channel never hides behind a non-nil interface.
type primaryAdapter struct {
	email *email.Mail
	sms   *sms.SNS
}

func (p *primaryAdapter) Channel() entity.Channel {
	switch {
	case p.email != nil:
		return p.email.Channel()
	case p.sms != nil:
		return p.sms.Channel()
	default:
		return entity.ChannelNone
	}
}

func (p *primaryAdapter) Configured() bool {
	return p.email.Configured() || p.sms.Configured()
}

func (p *primaryAdapter) Send(ctx context.Context, recipient string, msg entity.Message) (string, error) {
	if p.email != nil {
		return p.email.Send(ctx, recipient, msg)
	}
	return p.sms.Send(ctx, recipient, msg)
}

type secondaryAdapter struct {
	telegram *telegram.Telegram
	broker   *mq.Broker
}

func (s *secondaryAdapter) Channel() entity.Channel {
	switch {
	case s.telegram != nil:
		return s.telegram.Channel()
	case s.broker != nil:
		return s.broker.Channel()
	default:
		return entity.ChannelNone
	}
}

func (s *secondaryAdapter) Configured() bool {
	return s.telegram.Configured() || s.broker.Configured()
}

func (s *secondaryAdapter) Send(ctx context.Context, msg entity.Message) error {
	if s.telegram != nil {
		return s.telegram.Send(ctx, msg)
	}
	return s.broker.Send(ctx, msg)
}
