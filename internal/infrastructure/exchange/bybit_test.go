package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// fakeBybit serves canned V5 results keyed by path.
func fakeBybit(t *testing.T, results map[string]string, orders *[]map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))

		if r.Method == http.MethodPost && orders != nil {
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*orders = append(*orders, body)
		}
		result, ok := results[r.URL.Path]
		if !ok {
			w.Write([]byte(`{"retCode":10001,"retMsg":"unknown path","result":{}}`))
			return
		}
		if result[0] != '{' {
			// A bare "code msg" pair is returned as an error envelope.
			w.Write([]byte(`{"retCode":110043,"retMsg":"` + result + `","result":{}}`))
			return
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBybitAdapter_AccountReads(t *testing.T) {
	srv := fakeBybit(t, map[string]string{
		"/v5/market/tickers":         `{"list":[{"symbol":"BTCUSDT","lastPrice":"64250.5"}]}`,
		"/v5/position/list":          `{"list":[{"symbol":"BTCUSDT","side":"Sell","size":"0.005"}]}`,
		"/v5/account/wallet-balance": `{"list":[{"totalEquity":"1234.56"}]}`,
	}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)
	ctx := context.Background()

	price, err := b.ReadPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64250.5, price)

	pos, err := b.ReadPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, -0.005, pos)

	eq, err := b.ReadEquity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1234.56, eq)
}

func TestBybitAdapter_EmptyTickerIsNoPrice(t *testing.T) {
	srv := fakeBybit(t, map[string]string{"/v5/market/tickers": `{"list":[]}`}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)

	_, err := b.ReadPrice(context.Background(), "NOPEUSDT")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestBybitAdapter_SubmitOrder(t *testing.T) {
	var orders []map[string]interface{}
	srv := fakeBybit(t, map[string]string{"/v5/order/create": `{"orderId":"abc-1","orderLinkId":"x"}`}, &orders)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)

	conf, err := b.SubmitOrder(context.Background(), "BTCUSDT", domain.OrderInstruction{Side: domain.SideSell, Quantity: 0.002, ReduceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "abc-1", conf.OrderID)
	assert.True(t, conf.ReduceOnly)

	require.Len(t, orders, 1)
	assert.Equal(t, "Sell", orders[0]["side"])
	assert.Equal(t, "Market", orders[0]["orderType"])
	assert.Equal(t, "0.002", orders[0]["qty"])
	assert.Equal(t, true, orders[0]["reduceOnly"])
	assert.NotEmpty(t, orders[0]["orderLinkId"])
}

func TestBybitAdapter_SetLeverageNotModifiedIsOK(t *testing.T) {
	srv := fakeBybit(t, map[string]string{"/v5/position/set-leverage": "leverage not modified"}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)
	assert.NoError(t, b.SetLeverage(context.Background(), "BTCUSDT", 20))
}

func TestBybitAdapter_ErrorEnvelope(t *testing.T) {
	srv := fakeBybit(t, map[string]string{}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)

	_, err := b.ReadEquity(context.Background())
	assert.ErrorContains(t, err, "10001")
	assert.ErrorContains(t, err, "unknown path")
}

func TestBybitAdapter_CandlesOldestFirst(t *testing.T) {
	srv := fakeBybit(t, map[string]string{
		"/v5/market/kline": `{"list":[
			["1704074400000","102","103","101","102.5","12","0"],
			["1704070800000","101","102","100","101.5","11","0"],
			["1704067200000","100","101","99","100.5","10","0"]
		]}`,
	}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)

	candles, err := b.GetCandles(context.Background(), "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, int64(1704067200), candles[0].Time)
	assert.Equal(t, 102.5, candles[2].Close)
}

func TestBybitAdapter_InstrumentPrecision(t *testing.T) {
	srv := fakeBybit(t, map[string]string{
		"/v5/market/instruments-info": `{"list":[{"symbol":"BTCUSDT","status":"Trading","lotSizeFilter":{"qtyStep":"0.001"}}]}`,
	}, nil)
	b := NewBybitAdapter("test-key", "test-secret", srv.URL, nil)

	inst, err := b.GetInstrument(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3, inst.QuantityPrecision)
	assert.Equal(t, "Trading", inst.Status)
}

func TestBybitInterval(t *testing.T) {
	assert.Equal(t, "60", bybitInterval("1h"))
	assert.Equal(t, "240", bybitInterval("4h"))
	assert.Equal(t, "D", bybitInterval("1d"))
	assert.Equal(t, "15", bybitInterval("15m"))
}
