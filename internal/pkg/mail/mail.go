package mail

import (
	"context"
	"io"
)

// Message is an email payload. When both bodies are set the message is sent
// as multipart/alternative.
type Message struct {
	// MessageID is written as the Message-ID header when set, without angle brackets.
	MessageID string
	From      string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mail delivers messages.
type Mail interface {
	io.Closer
	Send(ctx context.Context, msg Message) error
}
