package sms

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
)

// maxBodyLen keeps a message inside a few SMS segments.
const maxBodyLen = 480

// Publisher is the subset of *sns.Client used here.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNS struct {
	client   Publisher
	senderID string
	ins      instrument.Instrumentation
}

func New(client Publisher, senderID string, ins instrument.Instrumentation) *SNS {
	return &SNS{client: client, senderID: senderID, ins: ins}
}

func (s *SNS) Channel() entity.Channel {
	return entity.ChannelSMS
}

func (s *SNS) Configured() bool {
	return s != nil && s.client != nil
}

// Send publishes msg as a transactional SMS and returns the SNS message id.
func (s *SNS) Send(ctx context.Context, recipient string, msg entity.Message) (string, error) {
	ctx, span := s.ins.Tracer("notification.outbound.sms").Start(ctx, "Send")
	defer span.End()

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(recipient),
		Message:           aws.String(renderText(msg)),
		MessageAttributes: attrs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return aws.ToString(out.MessageId), nil
}

func renderText(msg entity.Message) string {
	var b strings.Builder
	b.WriteString(msg.Subject)
	for _, f := range msg.Fields {
		if f.Value == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}

	out := b.String()
	if len(out) > maxBodyLen {
		out = out[:maxBodyLen]
	}
	return out
}
