package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cyberinferno/tradeserver/logger"
)

// DiscordNotifier posts notifications to a Discord channel through its
// webhook URL. Each notification blocks until Discord answered or Timeout
// passed; wrap it in a Background to keep callers from waiting. Failures are
// logged.
type DiscordNotifier struct {
	Webhook string
	Client  *http.Client
	Timeout time.Duration
	Logger  logger.Logger
	// MinLevel drops notifications below this level.
	MinLevel Level
}

// NewDiscordNotifier returns a notifier posting unexpected and unrecoverable
// events to webhook.
func NewDiscordNotifier(webhook string, log logger.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		Webhook:  webhook,
		Client:   &http.Client{},
		Timeout:  10 * time.Second,
		Logger:   log,
		MinLevel: Unexpected,
	}
}

func (d *DiscordNotifier) InformalEvent(msg string) {
	d.post(newEvent(Informal, msg, nil))
}

func (d *DiscordNotifier) UnexpectedEvent(msg string, cause error) {
	d.post(newEvent(Unexpected, msg, cause))
}

func (d *DiscordNotifier) UnrecoverableError(msg string, cause error) {
	d.post(newEvent(Unrecoverable, msg, cause))
}

func (d *DiscordNotifier) post(e Event) {
	if e.Level < d.MinLevel {
		return
	}

	if err := d.Send(context.Background(), e); err != nil {
		d.Logger.Warn("discord notification failed", logger.Err(err))
	}
}

// Send delivers one event synchronously.
//
// Parameters:
//   - ctx: Context for cancellation; Timeout is applied on top of it
//   - e: The event to deliver
//
// Returns:
//   - An error if the request could not be sent or Discord rejected it
func (d *DiscordNotifier) Send(ctx context.Context, e Event) error {
	content := fmt.Sprintf("[%s] %s", e.Level, e.Message)
	if e.Cause != "" {
		content += "\ncause: " + e.Cause
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("discord webhook returned %s", resp.Status)
	}

	return nil
}
