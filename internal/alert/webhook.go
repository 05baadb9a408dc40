package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrWebhookRejected - вебхук вернул не-успешный код ответа
var ErrWebhookRejected = errors.New("webhook rejected the payload")

// EmbedField - пара имя/значение в теле embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed - Discord-совместимое тело оповещения
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Sender доставляет embed на webhook-эндпоинт
type Sender interface {
	Send(ctx context.Context, embed Embed) error
}

// WebhookSender - HTTP-отправитель оповещений.
// Успешной доставкой считается только ответ 204 No Content.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender создает отправителя с собственным HTTP-клиентом
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send отправляет embed. Ответы 5xx и 429 считаются временными.
func (w *WebhookSender) Send(ctx context.Context, embed Embed) error {
	body, err := json.Marshal(webhookPayload{Embeds: []Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	err = fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	// 4xx повторять бессмысленно
	return &permanentDeliveryError{err}
}

type permanentDeliveryError struct {
	err error
}

func (e *permanentDeliveryError) Error() string { return e.err.Error() }

func (e *permanentDeliveryError) Unwrap() error { return e.err }

func (e *permanentDeliveryError) Retryable() bool { return false }
