// Package telegram delivers fired reminders to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"blinkbrain/internal/dispatch"
	"blinkbrain/internal/notifier"
	"blinkbrain/internal/schedule"
	"blinkbrain/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration
}

// sender is the part of *tele.Bot the sink uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Sink struct {
	cfg Config
	bot sender
	log logx.Logger
}

// New connects to the Bot API and returns a send-only sink.
func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Synchronous: true,
		Client:      &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newSink(cfg, b, log), nil
}

func newSink(cfg Config, bot sender, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{cfg: cfg, bot: bot, log: log.With(logx.String("component", "telegram"))}
}

func (s *Sink) Name() string { return "telegram" }

func (s *Sink) Deliver(ctx context.Context, n dispatch.Notification) error {
	text := Format(n)
	chat := &tele.Chat{ID: s.cfg.ChatID}
	opt := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true, ThreadID: s.cfg.ThreadID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	s.log.Debug("reminder sent", logx.String("handle", n.Handle), logx.Int64("chat_id", s.cfg.ChatID))
	return nil
}

// Format renders n as Telegram HTML. The reminder payload, when present,
// contributes the countdown, code blocks and attachment names.
func Format(n dispatch.Notification) string {
	var b strings.Builder
	b.WriteString("⏰ <b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Body))
	}

	p, err := notifier.DecodePayload(n.Payload)
	if len(n.Payload) == 0 || err != nil {
		return b.String()
	}
	if p.CountdownSeconds > 0 {
		fmt.Fprintf(&b, "\n\nCountdown: %s", schedule.FormatCountdown(p.CountdownSeconds))
	}
	for _, cb := range p.CodeBlocks {
		b.WriteString("\n\n<pre>")
		if cb.Language != "" {
			fmt.Fprintf(&b, "<code class=\"language-%s\">%s</code>", html.EscapeString(cb.Language), html.EscapeString(cb.Code))
		} else {
			b.WriteString(html.EscapeString(cb.Code))
		}
		b.WriteString("</pre>")
	}
	if len(p.Attachments) > 0 {
		b.WriteString("\n\nAttachments:")
		for _, a := range p.Attachments {
			name := a.FileName
			if name == "" {
				name = a.URI
			}
			fmt.Fprintf(&b, "\n• %s", html.EscapeString(name))
		}
	}
	return b.String()
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			out = append(out, strings.TrimRight(string(rs[start:]), "\n"))
			break
		}
		for i := end - 1; i > start+limit/3; i-- {
			if rs[i] == '\n' {
				end = i + 1
				break
			}
		}
		if open := lastIndex(rs[start:end], '<'); open > 0 && open > lastIndex(rs[start:end], '>') {
			end = start + open
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
