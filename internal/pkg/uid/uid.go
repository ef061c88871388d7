// Package uid generates identifiers.
//
// StringID is used for session ids and correlation ids. The concrete kind is
// picked from configuration through NewStringID.
package uid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned by NewStringID for an unsupported kind.
var ErrUnknownKind = errors.New("uid: unknown id kind")

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates numeric identifiers.
type NumberID interface {
	Generate() int64
}

const (
	KindUUID      = "uuid"
	KindULID      = "ulid"
	KindSnowflake = "snowflake"
)

// NewStringID returns the generator for kind. An empty kind selects UUID.
// node is only used by the snowflake generator.
func NewStringID(kind string, node int64) (StringID, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindUUID:
		return NewUUID(), nil
	case KindULID:
		return NewULID(), nil
	case KindSnowflake:
		sf, err := NewSnowflake(node)
		if err != nil {
			return nil, err
		}
		return sf.String(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
