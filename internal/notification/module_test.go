package notification

import (
	"context"
	"testing"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMail struct{ sent []mail.Message }

func (s *stubMail) Send(_ context.Context, msg mail.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubMail) Close() error { return nil }

type stubPublisher struct{}

func (stubPublisher) Publish(context.Context, string, messaging.OutgoingMessage) (messaging.PublishResult, error) {
	return messaging.PublishResult{}, nil
}

func (stubPublisher) Close() error { return nil }

func newDep(t *testing.T, yaml string) Dependency {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	return Dependency{
		Config:     cfg,
		Instrument: instrument.NewNoop(),
		Clock:      clock.New(),
		Goroutine:  goroutine.NewManager(2),
		UUID:       uid.NewUUID(),
	}
}

func TestNew_UnknownDrivers(t *testing.T) {
	_, err := New(newDep(t, "notification:\n  primary:\n    driver: pigeon\n"))
	assert.ErrorContains(t, err, `unknown primary driver "pigeon"`)

	_, err = New(newDep(t, "notification:\n  secondary:\n    driver: fax\n"))
	assert.ErrorContains(t, err, `unknown secondary driver "fax"`)

	_, err = New(newDep(t, "notification:\n  primary:\n    driver: telegram\n"))
	assert.ErrorContains(t, err, "telegram cannot be a primary channel")

	_, err = New(newDep(t, "notification:\n  secondary:\n    driver: smtp\n"))
	assert.ErrorContains(t, err, "email cannot be a secondary channel")
}

func TestNew_SMTPWithoutClientIsSkipped(t *testing.T) {
	uc, err := New(newDep(t, "notification:\n  primary:\n    driver: smtp\n    recipient: a@b.c\n"))
	require.NoError(t, err)

	res, err := uc.Dispatch(context.Background(), event.OTPEvent{Kind: event.KindIssued, SessionID: "s"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestNew_SMTPDelivers(t *testing.T) {
	dep := newDep(t, `
notification:
  primary:
    driver: smtp
    recipient: ops@example.com
  smtp:
    from: otp@example.com
  secondary:
    driver: messaging
`)
	sm := &stubMail{}
	dep.Mail = sm
	dep.Publisher = stubPublisher{}

	uc, err := New(dep)
	require.NoError(t, err)

	res, err := uc.Dispatch(context.Background(), event.OTPEvent{Kind: event.KindIssued, SessionID: "s", Code: "123456"})
	require.NoError(t, err)
	require.NoError(t, dep.Goroutine.Wait())

	assert.Equal(t, entity.ChannelEmail, res.Channel)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, sm.sent, 1)
	assert.Equal(t, []string{"ops@example.com"}, sm.sent[0].To)
}

func TestAdapters_Empty(t *testing.T) {
	p := &primaryAdapter{}
	assert.False(t, p.Configured())
	assert.Equal(t, entity.ChannelNone, p.Channel())

	s := &secondaryAdapter{}
	assert.False(t, s.Configured())
	assert.Equal(t, entity.ChannelNone, s.Channel())
}
