package email

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var bodyTemplate = template.Must(template.New("body").Option("missingkey=zero").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<h2>{{ .Subject }}</h2>
<table cellpadding="6" style="border-collapse: collapse;">
{{- range .Fields }}
<tr><td style="border: 1px solid #ddd;"><strong>{{ .Label }}</strong></td><td style="border: 1px solid #ddd;">{{ .Value }}</td></tr>
{{- end }}
</table>
</body>
</html>
`))

type Mail struct {
	client mail.Mail
	from   string
	domain string
	uuid   uid.StringID
	ins    instrument.Instrumentation
}

func New(client mail.Mail, from string, uuid uid.StringID, ins instrument.Instrumentation) *Mail {
	domain := "otpgate"
	if _, d, ok := strings.Cut(from, "@"); ok && d != "" {
		domain = strings.Trim(d, "> ")
	}

	return &Mail{client: client, from: from, domain: domain, uuid: uuid, ins: ins}
}

func (m *Mail) Channel() entity.Channel {
	return entity.ChannelEmail
}

func (m *Mail) Configured() bool {
	return m != nil && m.client != nil && strings.TrimSpace(m.from) != ""
}

// Send delivers msg as a multipart email and returns its Message-ID.
func (m *Mail) Send(ctx context.Context, recipient string, msg entity.Message) (string, error) {
	ctx, span := m.ins.Tracer("notification.outbound.email").Start(ctx, "Send")
	defer span.End()

	html, err := renderHTML(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	id := m.uuid.Generate() + "@" + m.domain
	span.SetAttributes(attribute.String("mail.message_id", id))

	err = m.client.Send(ctx, mail.Message{
		MessageID: id,
		From:      m.from,
		To:        []string{recipient},
		Subject:   msg.Subject,
		TextBody:  renderText(msg),
		HTMLBody:  html,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return id, nil
}

func renderHTML(msg entity.Message) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, msg); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func renderText(msg entity.Message) string {
	var b strings.Builder
	b.WriteString(msg.Subject)
	b.WriteString("\n\n")
	for _, f := range msg.Fields {
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}

	return b.String()
}
