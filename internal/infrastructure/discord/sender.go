package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender posts messages to per-user Discord webhooks registered by the bot.
type Sender interface {
	SendMessage(ctx context.Context, webhookURL, content string) error
}

type sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) Sender {
	return &sender{client: &http.Client{Timeout: timeout}}
}

func (s *sender) SendMessage(ctx context.Context, webhookURL, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Discord returns 204 on success; drain the body so the connection
	// can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned %d", resp.StatusCode)
	}
	return nil
}
