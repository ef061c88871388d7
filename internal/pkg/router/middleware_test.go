package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"true client ip", map[string]string{"True-Client-IP": "1.1.1.1"}, "9.9.9.9:1", "1.1.1.1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"}, "9.9.9.9:1", "2.2.2.2"},
		{"garbage header falls back", map[string]string{"X-Real-IP": "nope"}, "9.9.9.9:1", "9.9.9.9"},
		{"nothing usable", nil, "pipe", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, realIP(r))
		})
	}
}

func TestIPLimiter_IsolatesClientsAndForgetsIdle(t *testing.T) {
	now := time.Unix(0, 0)
	l := newIPLimiter(RateLimit{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(2 * time.Minute)
	l.allow("c")
	_, kept := l.visitors["a"]
	assert.False(t, kept)
}

func TestNormalizeCID(t *testing.T) {
	assert.Empty(t, normalizeCID("a\r\nb"))
	assert.Equal(t, "abc", normalizeCID("  abc "))
	assert.Len(t, normalizeCID(string(make([]byte, 300))), maxCorrelationIDLen)
}
