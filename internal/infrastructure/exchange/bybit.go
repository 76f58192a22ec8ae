package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

const (
	BybitBaseURL        = "https://api.bybit.com"
	BybitTestnetBaseURL = "https://api-testnet.bybit.com"
	BybitWSURL          = "wss://stream.bybit.com/v5/public/linear"
	BybitTestnetWSURL   = "wss://stream-testnet.bybit.com/v5/public/linear"
)

// BybitAdapter talks to the Bybit V5 REST API for linear perpetuals.
type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewBybitAdapter(apiKey, apiSecret, baseURL string, logger *zap.Logger) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BybitAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

func (b *BybitAdapter) Name() string { return "bybit" }

// --- REST API ---

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitAdapter) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// sendRequest signs and sends a request and returns the envelope's result once retCode is 0.
func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) (json.RawMessage, error) {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == http.MethodGet {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp, recvWindow))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bybit http %d: %s", resp.StatusCode, string(respBody))
	}

	var env bybitEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("bybit decode: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("bybit %s: %d %s", path, env.RetCode, env.RetMsg)
	}
	return env.Result, nil
}

func (b *BybitAdapter) ReadPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers?category=linear&symbol="+symbol, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("%w: symbol %s not found", domain.ErrNoPrice, symbol)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

// ReadPosition returns the signed size of the one-way position for symbol.
func (b *BybitAdapter) ReadPosition(ctx context.Context, symbol string) (float64, error) {
	raw, err := b.sendRequest(ctx, http.MethodGet, "/v5/position/list?category=linear&symbol="+symbol, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
			Size   string `json:"size"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}

	var net float64
	for _, p := range result.List {
		size, err := strconv.ParseFloat(p.Size, 64)
		if err != nil {
			return 0, fmt.Errorf("bybit position size %q: %w", p.Size, err)
		}
		switch p.Side {
		case "Buy":
			net += size
		case "Sell":
			net -= size
		}
	}
	return net, nil
}

// ReadEquity returns the unified account's total equity in USD.
func (b *BybitAdapter) ReadEquity(ctx context.Context) (float64, error) {
	raw, err := b.sendRequest(ctx, http.MethodGet, "/v5/account/wallet-balance?accountType=UNIFIED", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit wallet balance: empty account list")
	}
	return strconv.ParseFloat(result.List[0].TotalEquity, 64)
}

func (b *BybitAdapter) SubmitOrder(ctx context.Context, symbol string, order domain.OrderInstruction) (*domain.OrderConfirmation, error) {
	side := "Buy"
	if order.Side == domain.SideSell {
		side = "Sell"
	}
	linkID := uuid.New().String()
	payload := map[string]interface{}{
		"category":    "linear",
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         decimal.NewFromFloat(order.Quantity).String(),
		"timeInForce": "IOC",
		"reduceOnly":  order.ReduceOnly,
		"orderLinkId": linkID,
	}

	raw, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	b.logger.Debug("Bybit order accepted",
		zap.String("symbol", symbol),
		zap.String("order_id", result.OrderID),
		zap.String("link_id", linkID))

	return &domain.OrderConfirmation{
		OrderID:     result.OrderID,
		Symbol:      symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		ReduceOnly:  order.ReduceOnly,
		Status:      "Created",
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (b *BybitAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	payload := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	_, err := b.sendRequest(ctx, http.MethodPost, "/v5/position/set-leverage", payload)
	if err != nil && strings.Contains(err.Error(), "110043") {
		// 110043: leverage not modified
		return nil
	}
	return err
}

func (b *BybitAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	path := fmt.Sprintf("/v5/market/kline?category=linear&symbol=%s&interval=%s&limit=%d", symbol, bybitInterval(interval), limit)
	raw, err := b.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(result.List))
	for _, row := range result.List {
		// [startTime, open, high, low, close, volume, turnover]
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closePrice, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		candles = append(candles, domain.Candle{
			Time:   ts / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	// Bybit returns newest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// GetInstrument returns trading status and quantity precision derived from the lot size step.
func (b *BybitAdapter) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	raw, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/instruments-info?category=linear&symbol="+symbol, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Status        string `json:"status"`
			LotSizeFilter struct {
				QtyStep string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("bybit instrument %s not found", symbol)
	}

	item := result.List[0]
	step, err := decimal.NewFromString(item.LotSizeFilter.QtyStep)
	if err != nil {
		return nil, fmt.Errorf("bybit qty step %q: %w", item.LotSizeFilter.QtyStep, err)
	}
	precision := 0
	if exp := step.Exponent(); exp < 0 {
		precision = int(-exp)
	}
	return &domain.Instrument{
		Symbol:            item.Symbol,
		QuantityPrecision: precision,
		Status:            item.Status,
	}, nil
}

// bybitInterval maps Binance-style intervals (1m, 1h, 1d) onto Bybit's (1, 60, D).
func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "3m":
		return "3"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "2h":
		return "120"
	case "4h":
		return "240"
	case "1d":
		return "D"
	}
	return interval
}
