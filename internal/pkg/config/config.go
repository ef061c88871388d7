package config

import (
	"io"
	"time"
)

// TimeConfig reads integer values and scales them into durations.
//
// A missing or malformed key yields a zero duration.
type TimeConfig interface {
	// GetMillisecond reads key as a number of milliseconds.
	GetMillisecond(key string) time.Duration
	// GetSecond reads key as a number of seconds.
	GetSecond(key string) time.Duration
	// GetMinute reads key as a number of minutes.
	GetMinute(key string) time.Duration
	// GetHour reads key as a number of hours.
	GetHour(key string) time.Duration
}

// NumberConfig reads numeric values. A missing key yields zero.
type NumberConfig interface {
	GetInt(key string) int
	GetInt32(key string) int32
	GetInt64(key string) int64
	GetUint(key string) uint
	GetUint16(key string) uint16
	GetUint64(key string) uint64
	GetFloat64(key string) float64
}

// Config is the read-only view of runtime configuration used across the service.
type Config interface {
	io.Closer
	TimeConfig
	NumberConfig

	// GetBool reads key as a bool.
	GetBool(key string) bool

	// GetString reads key as a string.
	GetString(key string) string

	// GetBinary reads a base64 encoded key and returns the decoded bytes.
	GetBinary(key string) []byte

	// GetArray reads a "a,b,c" value (or a YAML list) as trimmed, non-empty strings.
	GetArray(key string) []string

	// GetMap reads a "k1:v1,k2:v2" value as a map.
	GetMap(key string) map[string]string

	// IsSet reports whether key is present in any source.
	IsSet(key string) bool
}
