package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
modules:
  otp:
    ttl_seconds: 300
    code_length: 6
notification:
  retry:
    backoff_unit_ms: 500
  mask: " code , entered_code ,,"
  list:
    - a
    - " b "
  pairs: "x:1, y:2,broken"
`

func TestNewViperFromBytes_RequiresType(t *testing.T) {
	_, err := NewViperFromBytes(" ", []byte(sample))
	assert.ErrorIs(t, err, ErrConfigTypeRequired)
}

func TestViper_Values(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte(sample))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfg.Close() })

	assert.Equal(t, 5*time.Minute, cfg.GetSecond("modules.otp.ttl_seconds"))
	assert.Equal(t, 6, cfg.GetInt("modules.otp.code_length"))
	assert.Equal(t, 500*time.Millisecond, cfg.GetMillisecond("notification.retry.backoff_unit_ms"))
	assert.Equal(t, []string{"code", "entered_code"}, cfg.GetArray("notification.mask"))
	assert.Equal(t, []string{"a", "b"}, cfg.GetArray("notification.list"))
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, cfg.GetMap("notification.pairs"))
	assert.Empty(t, cfg.GetArray("missing.key"))
	assert.True(t, cfg.IsSet("modules.otp.ttl_seconds"))
	assert.False(t, cfg.IsSet("modules.otp.nope"))
}

func TestViper_EnvOverride(t *testing.T) {
	t.Setenv("MODULES_OTP_CODE_LENGTH", "8")

	cfg, err := NewViperFromBytes("yaml", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.GetInt("modules.otp.code_length"))
}
