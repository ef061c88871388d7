package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/notification/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseURL = "https://api.telegram.org"

var markdownSpecial = regexp.MustCompile("[_*\\[\\]()~`>#+=|{}.!\\\\-]")

type Config struct {
	Token   string
	ChatID  string
	BaseURL string
	Timeout time.Duration
}

type Telegram struct {
	cfg    Config
	client *http.Client
	ins    instrument.Instrumentation
}

func New(cfg Config, ins instrument.Instrumentation) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Telegram{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, ins: ins}
}

func (t *Telegram) Channel() entity.Channel {
	return entity.ChannelTelegram
}

func (t *Telegram) Configured() bool {
	return t != nil && strings.TrimSpace(t.cfg.Token) != "" && strings.TrimSpace(t.cfg.ChatID) != ""
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, msg entity.Message) error {
	ctx, span := t.ins.Tracer("notification.outbound.telegram").Start(ctx, "Send")
	defer span.End()

	if err := t.send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (t *Telegram) send(ctx context.Context, msg entity.Message) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.cfg.ChatID,
		Text:      Format(msg),
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the token is part of the URL
		return fmt.Errorf("telegram: send message: %w", redact(err, t.cfg.Token))
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, out.Description)
	}

	return nil
}

// Format renders msg as MarkdownV2: a bold header followed by one
// "*label:* value" line per field.
func Format(msg entity.Message) string {
	var b strings.Builder
	b.WriteString("📩 *New ")
	b.WriteString(Escape(strings.ReplaceAll(msg.Type, "_", " ")))
	b.WriteString("*\n")
	b.WriteString(Escape(msg.Subject))
	b.WriteString("\n")

	for _, f := range msg.Fields {
		b.WriteString("\n*")
		b.WriteString(Escape(f.Label))
		b.WriteString(":* ")
		b.WriteString(Escape(f.Value))
	}

	return b.String()
}

// Escape backslash-escapes MarkdownV2 special characters.
func Escape(s string) string {
	return markdownSpecial.ReplaceAllString(s, `\$0`)
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
}
