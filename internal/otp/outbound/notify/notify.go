package notify

import (
	"context"

	notifentity "github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type dispatcher interface {
	Dispatch(ctx context.Context, ev event.OTPEvent) (*notifentity.Result, error)
}

// Notifier hands OTP events to the notification dispatcher.
type Notifier struct {
	dispatcher dispatcher
}

func New(d dispatcher) *Notifier {
	return &Notifier{dispatcher: d}
}

func (n *Notifier) Notify(ctx context.Context, ev event.OTPEvent) (*entity.Delivery, error) {
	res, err := n.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return nil, err
	}

	return &entity.Delivery{
		Channel:  res.Channel.String(),
		Skipped:  res.Skipped,
		Reason:   res.Reason,
		Attempts: res.Attempts,
	}, nil
}
