package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pmwatch/internal/config"
)

const discordMaxLen = 1900 // webhook hard limit is 2000, keep headroom

// Discord posts alert text to a webhook. Zero value is disabled.
type Discord struct {
	log     zerolog.Logger
	url     string
	httpCli *http.Client
}

func NewDiscord(log zerolog.Logger, cfg config.NotifyConfig) *Discord {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{
		log:     log,
		url:     cfg.DiscordWebhookURL,
		httpCli: &http.Client{Timeout: timeout},
	}
}

func (d *Discord) Enabled() bool {
	return d != nil && d.url != ""
}

// Send posts one message. Errors are returned for the caller to log;
// delivery failure never blocks state progress.
func (d *Discord) Send(ctx context.Context, text string) error {
	if !d.Enabled() {
		return nil
	}

	if len(text) > discordMaxLen {
		text = text[:discordMaxLen] + "…"
	}

	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
