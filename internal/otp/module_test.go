package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	notifentity "github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingDispatcher struct {
	mu     sync.Mutex
	events []event.OTPEvent
}

func (d *capturingDispatcher) Dispatch(_ context.Context, ev event.OTPEvent) (*notifentity.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return &notifentity.Result{Channel: notifentity.ChannelEmail, Attempts: 1}, nil
}

func (d *capturingDispatcher) lastCode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.events) - 1; i >= 0; i-- {
		if d.events[i].Kind == event.KindIssued {
			return d.events[i].Code
		}
	}
	return ""
}

type fixture struct {
	dep        Dependency
	dispatcher *capturingDispatcher
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	d := &capturingDispatcher{}
	return &fixture{
		dispatcher: d,
		dep: Dependency{
			Config:     cfg,
			Instrument: instrument.NewNoop(),
			Clock:      clock.New(),
			Validator:  v,
			Router:     router.NewRouter(router.Config{}),
			Cron:       cron.New(),
			Dispatcher: d,
		},
	}
}

func call(t *testing.T, h http.Handler, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestNew_SendThenVerify(t *testing.T) {
	f := newFixture(t, "modules:\n  otp:\n    code_length: 8\n    ttl_seconds: 120\n")

	closer, err := New(context.Background(), f.dep)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	code, body := call(t, f.dep.Router, "/api/v1/otp/send", `{"session_id":"sess-1"}`)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "sess-1", data["session_id"])
	assert.EqualValues(t, 120, data["expires_in_seconds"])

	otp := f.dispatcher.lastCode()
	require.Len(t, otp, 8)

	code, _ = call(t, f.dep.Router, "/api/v1/otp/verify", `{"session_id":"sess-1","code":"`+otp+`"}`)
	assert.Equal(t, http.StatusOK, code)

	code, body = call(t, f.dep.Router, "/api/v1/otp/verify", `{"session_id":"sess-1","code":"`+otp+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid or expired code", body["message"])
}

func TestNew_SchedulesSweepForMemory(t *testing.T) {
	f := newFixture(t, "modules:\n  otp:\n    sweep_cron: \"@every 5m\"\n")

	_, err := New(context.Background(), f.dep)
	require.NoError(t, err)
	assert.Len(t, f.dep.Cron.Entries(), 1)
}

func TestNew_RedisStoreWithIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, "modules:\n  otp:\n    store:\n      driver: redis\n")
	f.dep.Redis = rdb

	_, err := New(context.Background(), f.dep)
	require.NoError(t, err)
	assert.Empty(t, f.dep.Cron.Entries())

	code, _ := call(t, f.dep.Router, "/api/v1/otp/send", `{"session_id":"sess-1"}`, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, mr.Exists("otp:sess-1"))

	code, _ = call(t, f.dep.Router, "/api/v1/otp/send", `{"session_id":"sess-1"}`, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, code)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown store", "modules:\n  otp:\n    store:\n      driver: cassandra\n", "unknown driver"},
		{"redis without client", "modules:\n  otp:\n    store:\n      driver: redis\n", "requires a redis client"},
		{"unknown id kind", "modules:\n  otp:\n    session_id: serial\n", "unknown id kind"},
		{"bad schedule", "modules:\n  otp:\n    sweep_cron: sometimes\n", "schedule sweep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.yaml)
			_, err := New(context.Background(), f.dep)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
