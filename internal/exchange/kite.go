package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// KiteClient брокерский шлюз поверх Kite Connect REST API
type KiteClient struct {
	apiKey      string
	accessToken string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	logger      *utils.Logger
}

type candlesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]interface{} `json:"candles"`
	} `json:"data"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

type ltpResponse struct {
	Status string `json:"status"`
	Data   map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

type orderResponse struct {
	Status string `json:"status"`
	Data   struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// NewKiteClient создает клиент с ограничением частоты запросов
func NewKiteClient(apiKey, accessToken, baseURL string, timeout time.Duration, maxRetries int, rps float64, logger *utils.Logger) *KiteClient {
	return &KiteClient{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries:  maxRetries,
		logger:      logger,
	}
}

// Candles получает исторические свечи инструмента
func (k *KiteClient) Candles(ctx context.Context, exchange, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	const layout = "2006-01-02 15:04:05"
	endpoint := fmt.Sprintf("/instruments/historical/%s:%s/%s?from=%s&to=%s",
		exchange, url.PathEscape(symbol), interval,
		url.QueryEscape(from.Format(layout)), url.QueryEscape(to.Format(layout)))

	body, err := k.doRequest(ctx, http.MethodGet, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}

	var resp candlesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("candles %s: unmarshal: %w", symbol, err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("candles %s: %s: %w", symbol, resp.Message, domain.ErrBrokerAPI)
	}
	if len(resp.Data.Candles) == 0 {
		return nil, fmt.Errorf("candles %s: %w", symbol, domain.ErrDataUnavailable)
	}

	out := make([]domain.Candle, 0, len(resp.Data.Candles))
	for _, row := range resp.Data.Candles {
		c, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("candles %s: %w", symbol, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// LTP получает последнюю цену инструмента
func (k *KiteClient) LTP(ctx context.Context, exchange, tradingSymbol string) (float64, error) {
	key := exchange + ":" + tradingSymbol
	endpoint := "/quote/ltp?i=" + url.QueryEscape(key)

	body, err := k.doRequest(ctx, http.MethodGet, endpoint, "")
	if err != nil {
		return 0, fmt.Errorf("ltp %s: %w", key, err)
	}

	var resp ltpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("ltp %s: unmarshal: %w", key, err)
	}
	if resp.Status != "success" {
		return 0, fmt.Errorf("ltp %s: %s: %w", key, resp.Message, domain.ErrBrokerAPI)
	}
	quote, ok := resp.Data[key]
	if !ok || quote.LastPrice <= 0 {
		return 0, fmt.Errorf("ltp %s: %w", key, domain.ErrDataUnavailable)
	}
	return quote.LastPrice, nil
}

// PlaceOrder выставляет ордер. Каждый ордер получает уникальный тег:
// повторная отправка одного намерения различима в журнале брокера.
func (k *KiteClient) PlaceOrder(ctx context.Context, exchange string, intent domain.OrderIntent) (string, error) {
	form := url.Values{}
	form.Set("tradingsymbol", intent.Contract.TradingSymbol)
	form.Set("exchange", exchange)
	form.Set("transaction_type", intent.TransactionType)
	form.Set("quantity", fmt.Sprintf("%d", intent.Quantity))
	form.Set("order_type", string(intent.Method))
	form.Set("product", "NRML")
	form.Set("validity", "DAY")
	form.Set("tag", uuid.NewString()[:20])
	if intent.Method == domain.OrderLimit {
		form.Set("price", fmt.Sprintf("%.2f", intent.LimitPrice))
	}

	body, err := k.doRequest(ctx, http.MethodPost, "/orders/regular", form.Encode())
	if err != nil {
		return "", fmt.Errorf("place order %s: %w", intent.Contract.TradingSymbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("place order %s: unmarshal: %w", intent.Contract.TradingSymbol, err)
	}
	if resp.Status != "success" || resp.Data.OrderID == "" {
		return "", fmt.Errorf("place order %s: %s (%s): %w",
			intent.Contract.TradingSymbol, resp.Message, resp.ErrorType, domain.ErrExecutionFailed)
	}

	k.logger.Info("📤 Order placed: %s %s x%d %s, id %s",
		intent.TransactionType, intent.Contract.TradingSymbol, intent.Quantity, intent.Method, resp.Data.OrderID)
	return resp.Data.OrderID, nil
}

// doRequest выполняет запрос с лимитером и повторами на сетевых ошибках
// и кодах 429/5xx. Ошибки 4xx не повторяются. Тело передается строкой,
// чтобы каждая попытка отправляла его заново.
func (k *KiteClient) doRequest(ctx context.Context, method, endpoint, payload string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= k.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			k.logger.Warn("🔁 Retry %d/%d for %s %s after %v", attempt, k.maxRetries, method, endpoint, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := k.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := k.attempt(ctx, method, endpoint, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", k.maxRetries, lastErr)
}

func (k *KiteClient) attempt(ctx context.Context, method, endpoint, payload string) ([]byte, bool, error) {
	var body io.Reader
	if payload != "" {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+endpoint, body)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+k.apiKey+":"+k.accessToken)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrBrokerAPI)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(data)), domain.ErrBrokerAPI)
	}
	return data, false, nil
}

// parseCandle преобразует массив [time, o, h, l, c, volume] в свечу
func parseCandle(row []interface{}) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("candle row has %d fields: %w", len(row), domain.ErrDataUnavailable)
	}
	ts, ok := row[0].(string)
	if !ok {
		return domain.Candle{}, fmt.Errorf("candle timestamp not a string: %w", domain.ErrDataUnavailable)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parse candle time %q: %w", ts, err)
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		v, ok := row[i].(float64)
		if !ok {
			return domain.Candle{}, fmt.Errorf("candle field %d not a number: %w", i, domain.ErrDataUnavailable)
		}
		vals[i-1] = v
	}
	return domain.Candle{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
