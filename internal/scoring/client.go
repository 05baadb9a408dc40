package scoring

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"sentinel/internal/models"
	"sentinel/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NeutralConfidence возвращается при недоступности оценщика:
// нейтральное значение не даёт ни входа, ни вето по ошибке сети
const NeutralConfidence = 0.5

// Notifier - канал доставки алертов (см. engine.Notifier)
type Notifier interface {
	Trigger(alertType, severity, message string, meta map[string]interface{})
}

// Summary - сводка рыночной обстановки, отправляемая оценщику
type Summary struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Strategy  string  `json:"strategy"`
	Price     float64 `json:"price"`
	Season    string  `json:"season"`
	Resonance int     `json:"resonance"`
}

// Поле указательное: ответ без confidence иначе декодировался бы
// в 0.0, а ноль означает жёсткое вето, не отсутствие оценки.
type scoreResponse struct {
	Confidence *float64 `json:"confidence"`
}

// Client - клиент сервиса оценки уверенности.
//
// Сервис возвращает уверенность в сигнале [0, 1]. Любой сбой - сеть,
// не-200 ответ, неразборчивое тело - деградирует в нейтральные 0.5
// с алертом SCORING_DEGRADED: торговля продолжается, но отказ оценщика
// виден оператору, а не прячется за дефолтом.
type Client struct {
	url      string
	client   *http.Client
	notifier Notifier
	logger   *zap.Logger

	degraded atomic.Bool
}

// NewClient создает клиента оценщика
func NewClient(url string, timeout time.Duration, notifier Notifier, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		notifier: notifier,
		logger:   logger,
	}
}

// Degraded возвращает true если последний запрос завершился фолбэком
func (c *Client) Degraded() bool {
	return c.degraded.Load()
}

// Score запрашивает уверенность в сигнале. Никогда не возвращает
// значение вне [0, 1]; при сбое возвращает NeutralConfidence.
func (c *Client) Score(ctx context.Context, summary Summary) float64 {
	confidence, err := c.fetch(ctx, summary)
	if err != nil {
		c.fallback(summary, err)
		return NeutralConfidence
	}

	if c.degraded.Swap(false) {
		c.logger.Info("scoring service recovered")
	}
	return utils.Clamp(confidence, 0, 1)
}

func (c *Client) fetch(ctx context.Context, summary Summary) (float64, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("failed to encode summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("scoring service returned status %d", resp.StatusCode)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	if parsed.Confidence == nil {
		return 0, fmt.Errorf("scoring response missing confidence")
	}
	return *parsed.Confidence, nil
}

// fallback фиксирует деградацию. Алерт поднимается на переходе
// в деградированное состояние, не на каждом сбое.
func (c *Client) fallback(summary Summary, err error) {
	c.logger.Warn("scoring degraded to neutral confidence",
		zap.String("symbol", summary.Symbol),
		zap.Error(err))
	if !c.degraded.Swap(true) {
		c.notifier.Trigger(models.AlertTypeScoringDegraded, models.SeverityWarning,
			fmt.Sprintf("Сервис оценки недоступен, уверенность зафиксирована на %.1f: %v", NeutralConfidence, err),
			map[string]interface{}{"symbol": summary.Symbol})
	}
}
