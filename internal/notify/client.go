package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/marcus/hearth/internal/record"
)

// Sender hands a notification to the delivery service.
type Sender interface {
	Notify(ctx context.Context, n Notification) error
}

// Client sends notifications in the background. Failures are logged and
// never reach the caller.
type Client struct {
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewClient wraps sender.
func NewClient(sender Sender) *Client {
	return &Client{sender: sender, timeout: DefaultTimeout}
}

// Deliver sends n without blocking.
func (c *Client) Deliver(n Notification) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.sender.Notify(ctx, n); err != nil {
			slog.Warn("notify: send failed", "title", n.Title, "err", err)
		}
	}()
}

// Wait blocks until every pending delivery has finished. Short-lived
// processes call it before exiting.
func (c *Client) Wait() {
	c.wg.Wait()
}

// ForMessage builds the notification for a confirmed chat message: everyone
// but the sender, deep-linked to the message.
func ForMessage(rec record.Record) Notification {
	msg := record.MessageFrom(rec)
	body := msg.Content
	if msg.Type != "" && msg.Type != "text" {
		body = fmt.Sprintf("[%s] %s", msg.Type, body)
	}
	return Notification{
		Except: msg.SenderID,
		Title:  "New message from " + titleCase(msg.SenderID),
		Body:   truncate(body, 140),
		URL:    "/chat#" + rec.ID,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
