package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type payload struct {
	Type        string         `json:"type"`
	Kind        string         `json:"kind"`
	Subject     string         `json:"subject"`
	SessionID   string         `json:"session_id"`
	Fields      []entity.Field `json:"fields"`
	PublishedAt time.Time      `json:"published_at"`
}

// Broker publishes rendered messages as JSON to a messaging destination.
type Broker struct {
	pub         messaging.Publisher
	destination string
	clock       clock.Clocker
	ins         instrument.Instrumentation
}

func New(pub messaging.Publisher, destination string, clk clock.Clocker, ins instrument.Instrumentation) *Broker {
	return &Broker{pub: pub, destination: destination, clock: clk, ins: ins}
}

func (b *Broker) Channel() entity.Channel {
	return entity.ChannelMessaging
}

func (b *Broker) Configured() bool {
	return b != nil && b.pub != nil && b.destination != ""
}

func (b *Broker) Send(ctx context.Context, msg entity.Message) error {
	ctx, span := b.ins.Tracer("notification.outbound.mq").Start(ctx, "Send")
	defer span.End()

	body, err := json.Marshal(payload{
		Type:        msg.Type,
		Kind:        msg.Kind.String(),
		Subject:     msg.Subject,
		SessionID:   msg.SessionID,
		Fields:      msg.Fields,
		PublishedAt: b.clock.Now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	res, err := b.pub.Publish(ctx, b.destination, messaging.OutgoingMessage{
		Body: body,
		Key:  []byte(msg.SessionID),
		Headers: []messaging.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-kind", Value: []byte(msg.Kind.String())},
			{Key: keyOfCorrelationID, Value: []byte(instrument.GetCorrelationID(ctx))},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("messaging.message_id", res.MessageID))
	return nil
}
