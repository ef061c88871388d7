package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnsupported is returned when the broker cannot honour a message option,
// for example a delay on NATS.
var ErrUnsupported = errors.New("messaging: unsupported operation")

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("messaging: publisher is closed")

// Publisher sends messages to a destination (topic or subject).
type Publisher interface {
	io.Closer
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// OutgoingMessage is a broker-agnostic message.
type OutgoingMessage struct {
	Body []byte
	// Key is the Kafka partition key and the Pub/Sub ordering key.
	Key     []byte
	Headers []Header
	// Delay defers delivery. Only NSQ supports it.
	Delay time.Duration
}

// Header is a message header. Pub/Sub receives headers as attributes.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult carries what the broker reported for an accepted message.
type PublishResult struct {
	MessageID string
	Topic     string
	Timestamp time.Time
}

func headerMap(hs []Header) map[string]string {
	if len(hs) == 0 {
		return nil
	}
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		if h.Key != "" {
			m[h.Key] = string(h.Value)
		}
	}
	return m
}
