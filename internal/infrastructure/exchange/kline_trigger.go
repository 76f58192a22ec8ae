package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// BybitKlineTrigger listens to the public kline topic and signals whenever a bar closes.
type BybitKlineTrigger struct {
	wsURL  string
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewBybitKlineTrigger(wsURL string, logger *zap.Logger) *BybitKlineTrigger {
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BybitKlineTrigger{
		wsURL:  wsURL,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

type bybitKlineMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start   int64 `json:"start"`
		Confirm bool  `json:"confirm"`
	} `json:"data"`
}

// ClosedBars subscribes to kline.<interval>.<symbol> and keeps reconnecting until ctx is done.
func (t *BybitKlineTrigger) ClosedBars(ctx context.Context, symbol, interval string) <-chan struct{} {
	out := make(chan struct{}, 1)
	topic := "kline." + bybitInterval(interval) + "." + symbol

	go func() {
		defer close(out)
		delay := time.Second
		for {
			err := t.stream(ctx, topic, out)
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("Bybit kline stream dropped", zap.String("topic", topic), zap.Error(err), zap.Duration("retry_in", delay))
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
		}
	}()
	return out
}

func (t *BybitKlineTrigger) stream(ctx context.Context, topic string, out chan<- struct{}) error {
	conn, _, err := t.dialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{topic},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return err
	}

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Bybit drops idle connections after 10 minutes without a ping.
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	var lastStart int64
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		closed, start := parseKlineConfirm(message, topic)
		if !closed || start == lastStart {
			continue
		}
		lastStart = start
		select {
		case out <- struct{}{}:
		default:
		}
	}
}

// parseKlineConfirm reports whether message carries a confirmed (closed) bar for topic.
func parseKlineConfirm(message []byte, topic string) (bool, int64) {
	if !strings.Contains(string(message), `"topic"`) {
		return false, 0
	}
	var msg bybitKlineMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Topic != topic {
		return false, 0
	}
	for _, k := range msg.Data {
		if k.Confirm {
			return true, k.Start
		}
	}
	return false, 0
}
