package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sentinel/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LiveConfig - настройки live подключения к бирже
type LiveConfig struct {
	Name      string // имя площадки для логов и ошибок
	BaseURL   string
	APIKey    string
	APISecret string

	// Лимит запросов к REST API (биржи обычно дают ~10 req/sec)
	RateLimit float64
	Burst     float64

	HTTP HTTPClientConfig
}

// Live - REST клиент реальной биржи.
//
// Все приватные запросы подписываются HMAC-SHA256 от
// timestamp + method + path + query.
type Live struct {
	name      string
	baseURL   string
	apiKey    string
	apiSecret string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewLive создаёт live клиента. API ключи приходят уже расшифрованными
// (хранятся в настройках в виде AES-GCM ciphertext).
func NewLive(cfg LiveConfig) (*Live, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("exchange base URL is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("exchange API credentials are required")
	}
	if cfg.Name == "" {
		cfg.Name = "live"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.HTTP == (HTTPClientConfig{}) {
		cfg.HTTP = DefaultHTTPClientConfig()
	}

	return &Live{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: NewHTTPClient(cfg.HTTP),
		limiter:    ratelimit.NewRateLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

// Name возвращает имя площадки
func (l *Live) Name() string { return l.name }

// ============================================================
// Публичные запросы
// ============================================================

type tickerResponse struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Volume1h  float64 `json:"volume_1h"`
	Volume24h float64 `json:"volume_24h"`
	Change4h  float64 `json:"change_4h"`
	Ts        int64   `json:"ts"`
}

// FetchTicker получает текущую цену актива
func (l *Live) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	q := url.Values{"symbol": {symbol}}

	var resp tickerResponse
	if err := l.request(ctx, http.MethodGet, "/api/v1/ticker", q, false, &resp); err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol:    resp.Symbol,
		BidPrice:  resp.Bid,
		AskPrice:  resp.Ask,
		LastPrice: resp.Last,
		Volume1h:  resp.Volume1h,
		Volume24h: resp.Volume24h,
		Change4h:  resp.Change4h,
		Timestamp: time.UnixMilli(resp.Ts),
	}, nil
}

// Ping проверяет доступность биржи
func (l *Live) Ping(ctx context.Context) error {
	return l.request(ctx, http.MethodGet, "/api/v1/time", nil, false, nil)
}

// ============================================================
// Приватные запросы
// ============================================================

type balanceResponse struct {
	Available float64 `json:"available"`
}

// FetchBalance получает свободный баланс в USDT
func (l *Live) FetchBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := l.request(ctx, http.MethodGet, "/api/v1/balance", nil, true, &resp); err != nil {
		return 0, err
	}
	return resp.Available, nil
}

type orderResponse struct {
	OrderID      string  `json:"order_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Type         string  `json:"type"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"qty"`
	FilledQty    float64 `json:"filled_qty"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	Status       string  `json:"status"`
	CreatedTs    int64   `json:"created_ts"`
	UpdatedTs    int64   `json:"updated_ts"`
}

func (r *orderResponse) toOrder() *Order {
	return &Order{
		ID:           r.OrderID,
		Symbol:       r.Symbol,
		Side:         r.Side,
		Kind:         r.Type,
		Price:        r.Price,
		Quantity:     r.Quantity,
		FilledQty:    r.FilledQty,
		AvgFillPrice: r.AvgFillPrice,
		Status:       r.Status,
		CreatedAt:    time.UnixMilli(r.CreatedTs),
		UpdatedAt:    time.UnixMilli(r.UpdatedTs),
	}
}

// CreateOrder размещает ордер
func (l *Live) CreateOrder(ctx context.Context, params OrderParams) (*Order, error) {
	kind := params.Kind
	if kind == "" {
		kind = KindMarket
	}
	q := url.Values{
		"symbol": {params.Symbol},
		"side":   {params.Side},
		"type":   {kind},
		"qty":    {strconv.FormatFloat(params.Quantity, 'f', -1, 64)},
	}
	if kind == KindLimit {
		q.Set("price", strconv.FormatFloat(params.Price, 'f', -1, 64))
	}

	var resp orderResponse
	if err := l.request(ctx, http.MethodPost, "/api/v1/order", q, true, &resp); err != nil {
		return nil, err
	}
	return resp.toOrder(), nil
}

// FetchOrder получает актуальный статус ордера
func (l *Live) FetchOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	q := url.Values{"symbol": {symbol}, "order_id": {orderID}}

	var resp orderResponse
	if err := l.request(ctx, http.MethodGet, "/api/v1/order", q, true, &resp); err != nil {
		return nil, err
	}
	return resp.toOrder(), nil
}

// CancelOrder отменяет ордер
func (l *Live) CancelOrder(ctx context.Context, symbol, orderID string) error {
	q := url.Values{"symbol": {symbol}, "order_id": {orderID}}
	return l.request(ctx, http.MethodDelete, "/api/v1/order", q, true, nil)
}

// Close закрывает idle соединения
func (l *Live) Close() error {
	CloseIdleConnections(l.httpClient)
	return nil
}

// ============================================================
// Транспорт
// ============================================================

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// request выполняет запрос с учётом rate limit и подписи
func (l *Live) request(ctx context.Context, method, path string, q url.Values, signed bool, out interface{}) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	u := l.baseURL + path
	query := ""
	if q != nil {
		query = q.Encode()
	}
	if query != "" && method == http.MethodGet {
		u += "?" + query
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
		if query != "" {
			req.URL.RawQuery = query
		}
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-Api-Key", l.apiKey)
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", l.sign(ts+method+path+query))
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки считаем временными
		return &Error{Venue: l.name, Message: err.Error(), Transient: true, Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Venue: l.name, Message: "read response: " + err.Error(), Transient: true, Original: err}
	}

	if resp.StatusCode != http.StatusOK {
		return l.mapHTTPError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Venue: l.name, Message: "decode response: " + err.Error(), Original: err}
	}
	return nil
}

// sign подписывает payload HMAC-SHA256
func (l *Live) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(l.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// mapHTTPError переводит HTTP статус в типизированную ошибку.
// 5xx и 429 временные, 4xx постоянные.
func (l *Live) mapHTTPError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	if ae.Message == "" {
		ae.Message = http.StatusText(status)
	}

	return &Error{
		Venue:     l.name,
		Code:      ae.Code,
		Message:   fmt.Sprintf("HTTP %d: %s", status, ae.Message),
		Transient: status >= 500 || status == http.StatusTooManyRequests,
	}
}
