package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttl = 300 * time.Second

type fixedID string

func (f fixedID) Generate() string { return string(f) }

type recordingNotify struct {
	mu     sync.Mutex
	events []event.OTPEvent
	err    error
	skip   bool
}

func (r *recordingNotify) Notify(_ context.Context, ev event.OTPEvent) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	if r.err != nil {
		return nil, r.err
	}
	return &entity.Delivery{Channel: "email", Skipped: r.skip, Attempts: 1}, nil
}

func (r *recordingNotify) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]event.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recordingNotify) last() event.OTPEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// failingStore fails every call with ErrUnavailable.
type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Issue(context.Context, string) (*entity.Record, error) {
	return nil, errors.Join(store.ErrUnavailable, errDown)
}

func (failingStore) Lookup(context.Context, string) (*entity.Record, error) {
	return nil, errors.Join(store.ErrUnavailable, errDown)
}

func (failingStore) RecordFailedAttempt(context.Context, string) (int, error) {
	return 0, errors.Join(store.ErrUnavailable, errDown)
}

func (failingStore) Consume(context.Context, string) error {
	return errors.Join(store.ErrUnavailable, errDown)
}

func (failingStore) CompareAndConsume(context.Context, string, string) (bool, error) {
	return false, errors.Join(store.ErrUnavailable, errDown)
}

func (failingStore) Sweep(context.Context) (int, error) {
	return 0, errors.Join(store.ErrUnavailable, errDown)
}

type fixture struct {
	uc     *Usecase
	store  *store.Memory
	notify *recordingNotify
	clock  *clock.Manual
}

func newFixture(t *testing.T, opts ...func(*Dependency)) *fixture {
	t.Helper()

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	mem := store.NewMemory(store.Options{Generator: otp.NewGenerator(6), Clock: clk, TTL: ttl})
	n := &recordingNotify{}

	dep := Dependency{
		Store:      mem,
		Notify:     n,
		Clock:      clk,
		SessionID:  fixedID("generated-session"),
		Validator:  v,
		Instrument: instrument.NewNoop(),
		TTL:        ttl,
	}
	for _, opt := range opts {
		opt(&dep)
	}

	return &fixture{uc: New(dep), store: mem, notify: n, clock: clk}
}

func (f *fixture) issue(t *testing.T, sessionID string) string {
	t.Helper()

	_, err := f.uc.Issue(context.Background(), IssueInput{SessionID: sessionID})
	require.NoError(t, err)

	rec, err := f.store.Lookup(context.Background(), sessionID)
	require.NoError(t, err)
	return rec.Code
}

func wrong(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}

func TestVerify_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.issue(t, "s1")

	out, err := f.uc.Verify(ctx, VerifyInput{SessionID: "s1", Code: wrong(code)})
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, entity.OutcomeInvalid, out.Outcome)
	assert.Equal(t, MessageRejected, out.Message)
	assert.Equal(t, 1, f.notify.last().Attempts)

	out, err = f.uc.Verify(ctx, VerifyInput{SessionID: "s1", Code: code})
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, entity.OutcomeVerified, out.Outcome)

	_, err = f.store.Lookup(ctx, "s1")
	assert.ErrorIs(t, err, goerror.ErrNotFound)

	out, err = f.uc.Verify(ctx, VerifyInput{SessionID: "s1", Code: code})
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Equal(t, entity.OutcomeExpired, out.Outcome)
	assert.Equal(t, MessageRejected, out.Message)

	assert.Equal(t, []event.Kind{
		event.KindIssued,
		event.KindAttemptInvalid,
		event.KindAttemptVerified,
		event.KindAttemptExpired,
	}, f.notify.kinds())
}

func TestVerify_InvalidAttemptsAccumulate(t *testing.T) {
	f := newFixture(t)
	code := f.issue(t, "s2")

	for want := 1; want <= 4; want++ {
		out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s2", Code: wrong(code)})
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeInvalid, out.Outcome)
		assert.Equal(t, want, f.notify.last().Attempts)
		assert.Equal(t, wrong(code), f.notify.last().EnteredCode)
	}

	rec, err := f.store.Lookup(context.Background(), "s2")
	require.NoError(t, err, "no lockout")
	assert.Equal(t, 4, rec.Attempts)
}

func TestVerify_ExpiredWithoutPurge(t *testing.T) {
	f := newFixture(t)
	code := f.issue(t, "s3")

	f.clock.Advance(ttl)
	out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s3", Code: code})
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeExpired, out.Outcome)
	assert.Equal(t, 1, f.store.Len(), "record still physically present")
}

func TestVerify_NeverIssued(t *testing.T) {
	f := newFixture(t)

	out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "ghost", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeExpired, out.Outcome)
	assert.Equal(t, MessageRejected, out.Message)
}

func TestVerify_ConcurrentCorrectCode(t *testing.T) {
	f := newFixture(t)
	code := f.issue(t, "race")

	const workers = 12
	results := make(chan entity.Outcome, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "race", Code: code})
			if assert.NoError(t, err) {
				results <- out.Outcome
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[entity.Outcome]int{}
	for o := range results {
		counts[o]++
	}
	assert.Equal(t, 1, counts[entity.OutcomeVerified])
	assert.Equal(t, workers-1, counts[entity.OutcomeExpired])
}

func TestVerify_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   VerifyInput
	}{
		{name: "missing session", in: VerifyInput{Code: "123456"}},
		{name: "missing code", in: VerifyInput{SessionID: "s"}},
		{name: "letters", in: VerifyInput{SessionID: "s", Code: "12a456"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.Verify(context.Background(), tt.in)
			ge, ok := goerror.As(err)
			require.True(t, ok)
			assert.Equal(t, goerror.TypeValidation, ge.Type())
			assert.Equal(t, http.StatusUnprocessableEntity, ge.StatusCode())
		})
	}
	assert.Empty(t, f.notify.kinds())
}

func TestVerify_WrongLengthCountsAsAttempt(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "s11")

	for want, code := range []string{"123", "1234567"} {
		out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s11", Code: code})
		require.NoError(t, err)
		assert.False(t, out.Verified)
		assert.Equal(t, entity.OutcomeInvalid, out.Outcome)
		assert.Equal(t, MessageRejected, out.Message)
		assert.Equal(t, event.KindAttemptInvalid, f.notify.last().Kind)
		assert.Equal(t, want+1, f.notify.last().Attempts)
	}

	rec, err := f.store.Lookup(context.Background(), "s11")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
}

func TestVerify_StoreUnavailable(t *testing.T) {
	f := newFixture(t, func(d *Dependency) { d.Store = failingStore{} })

	out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s", Code: "123456"})
	assert.Nil(t, out)
	ge, ok := goerror.As(err)
	require.True(t, ok)
	assert.Equal(t, goerror.TypeServer, ge.Type())
	assert.ErrorIs(t, err, store.ErrUnavailable)

	ev := f.notify.last()
	assert.Equal(t, event.KindSystemError, ev.Kind)
	assert.Equal(t, event.StageVerify, ev.Stage)
	assert.Contains(t, ev.ErrorDetail, "connection refused")
}

func TestVerify_NotificationFailureKeepsOutcome(t *testing.T) {
	f := newFixture(t)
	code := f.issue(t, "s4")
	f.notify.err = errors.New("smtp down")

	out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s4", Code: code})
	require.NoError(t, err)
	assert.True(t, out.Verified)
}

func TestIssue(t *testing.T) {
	f := newFixture(t)

	out, err := f.uc.Issue(context.Background(), IssueInput{Recipient: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "generated-session", out.SessionID)
	assert.Equal(t, ttl, out.ExpiresIn)
	assert.Equal(t, f.clock.Now().Add(ttl), out.ExpiresAt)
	assert.Equal(t, "email", out.Delivery.Channel)

	ev := f.notify.last()
	assert.Equal(t, event.KindIssued, ev.Kind)
	assert.Equal(t, "user@example.com", ev.Recipient)
	assert.Equal(t, ttl, ev.ExpiresIn)
	assert.Len(t, ev.Code, 6)

	rec, err := f.store.Lookup(context.Background(), "generated-session")
	require.NoError(t, err)
	assert.Equal(t, ev.Code, rec.Code)
}

func TestIssue_ReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, "s5")
	_, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "s5", Code: wrong(first)})
	require.NoError(t, err)

	second := f.issue(t, "s5")
	rec, err := f.store.Lookup(context.Background(), "s5")
	require.NoError(t, err)
	assert.Equal(t, second, rec.Code)
	assert.Zero(t, rec.Attempts)
}

func TestIssue_SkippedDeliveryStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.notify.skip = true

	out, err := f.uc.Issue(context.Background(), IssueInput{SessionID: "s6"})
	require.NoError(t, err)
	assert.True(t, out.Delivery.Skipped)

	_, err = f.store.Lookup(context.Background(), "s6")
	assert.NoError(t, err)
}

func TestIssue_DeliveryFailureWithdrawsCode(t *testing.T) {
	f := newFixture(t)
	f.notify.err = errors.New("all attempts failed")

	out, err := f.uc.Issue(context.Background(), IssueInput{SessionID: "s7"})
	assert.Nil(t, out)
	ge, ok := goerror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, ge.StatusCode())

	_, err = f.store.Lookup(context.Background(), "s7")
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

// reissuingNotify replaces the session's code from inside the first delivery
// and then fails it, like a concurrent send landing mid-delivery.
type reissuingNotify struct {
	store  *store.Memory
	mu     sync.Mutex
	called bool
	code   string
}

func (r *reissuingNotify) Notify(ctx context.Context, ev event.OTPEvent) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.called || ev.Kind != event.KindIssued {
		return &entity.Delivery{Channel: "email", Attempts: 1}, nil
	}
	r.called = true

	rec, err := r.store.Issue(ctx, ev.SessionID)
	if err != nil {
		return nil, err
	}
	r.code = rec.Code
	return nil, errors.New("all attempts failed")
}

func TestIssue_DeliveryFailureKeepsNewerCode(t *testing.T) {
	n := &reissuingNotify{}
	f := newFixture(t, func(d *Dependency) { d.Notify = n })
	n.store = f.store

	_, err := f.uc.Issue(context.Background(), IssueInput{SessionID: "race"})
	require.Error(t, err)
	require.NotEmpty(t, n.code)

	rec, err := f.store.Lookup(context.Background(), "race")
	require.NoError(t, err, "newer code must survive the failed delivery")
	assert.Equal(t, n.code, rec.Code)

	out, err := f.uc.Verify(context.Background(), VerifyInput{SessionID: "race", Code: n.code})
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, entity.OutcomeVerified, out.Outcome)
}

func TestIssue_StoreUnavailable(t *testing.T) {
	f := newFixture(t, func(d *Dependency) { d.Store = failingStore{} })

	_, err := f.uc.Issue(context.Background(), IssueInput{SessionID: "s8"})
	assert.ErrorIs(t, err, store.ErrUnavailable)

	ev := f.notify.last()
	assert.Equal(t, event.KindSystemError, ev.Kind)
	assert.Equal(t, event.StageIssue, ev.Stage)
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Issue(context.Background(), IssueInput{SessionID: "bad\x00id"})
	ge, ok := goerror.As(err)
	require.True(t, ok)
	assert.Equal(t, goerror.TypeValidation, ge.Type())
}

func TestIssue_Idempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *Dependency) { d.Guard = idempotency.New(client, "test:") })
	ctx := context.Background()

	_, err := f.uc.Issue(ctx, IssueInput{SessionID: "s9", IdempotencyKey: "k1"})
	require.NoError(t, err)

	_, err = f.uc.Issue(ctx, IssueInput{SessionID: "s9", IdempotencyKey: "k1"})
	ge, ok := goerror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, ge.StatusCode())
	assert.Len(t, f.notify.kinds(), 1, "duplicate must not send another code")

	f.notify.err = errors.New("down")
	_, err = f.uc.Issue(ctx, IssueInput{SessionID: "s10", IdempotencyKey: "k2"})
	require.Error(t, err)

	f.notify.err = nil
	_, err = f.uc.Issue(ctx, IssueInput{SessionID: "s10", IdempotencyKey: "k2"})
	assert.NoError(t, err, "a failed request releases its key")
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	f.issue(t, "a")
	f.issue(t, "b")
	f.clock.Advance(ttl)
	f.issue(t, "c")

	n, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f = newFixture(t, func(d *Dependency) { d.Store = failingStore{} })
	_, err = f.uc.Sweep(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
