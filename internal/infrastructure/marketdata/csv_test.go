package marketdata_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/marketdata"
)

func TestReadCSV_MixedTimeFormats(t *testing.T) {
	data := `Timestamp,Open,High,Low,Close,Volume
2024-01-01T02:00:00Z,102,103,101,102.5,12
1704067200,100,101,99,100.5,10
1704070800000,101,102,100,101.5,11
`
	candles, err := marketdata.ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, int64(1704067200), candles[0].Time)
	assert.Equal(t, int64(1704070800), candles[1].Time)
	assert.Equal(t, int64(1704074400), candles[2].Time)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 103.0, candles[2].High)
	assert.Equal(t, 11.0, candles[1].Volume)
}

func TestReadCSV_DedupesAndSkipsBadRows(t *testing.T) {
	data := `date,close,extra
2024-01-02,50,x
2024-01-01,40,y
2024-01-02,55,z
not-a-date,60,w
2024-01-03,,v
2024-01-04,-1,u
`
	candles, err := marketdata.ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 40.0, candles[0].Close)
	assert.Equal(t, 55.0, candles[1].Close, "duplicate timestamp keeps the last row")
	// Missing OHLC fall back to close.
	assert.Equal(t, 55.0, candles[1].Open)
	assert.Equal(t, 55.0, candles[1].High)
	assert.Equal(t, 55.0, candles[1].Low)
	assert.Zero(t, candles[1].Volume)
}

func TestReadCSV_SkipsNonFiniteValues(t *testing.T) {
	data := `time,open,high,low,close,volume
1704067200,100,101,99,100,10
1704070800,100,101,99,NaN,10
1704074400,100,101,99,+Inf,10
1704078000,100,Inf,99,100,10
1704081600,NaN,101,99,100,10
1704085200,100,101,99,101,-Inf
1704088800,101,102,100,101.5,11
`
	candles, err := marketdata.ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1704067200), candles[0].Time)
	assert.Equal(t, int64(1704088800), candles[1].Time)
	for _, c := range candles {
		assert.Greater(t, c.Close, 0.0)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := marketdata.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	candles, err := marketdata.ReadCSV(strings.NewReader("time,close\n"))
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btc.csv")
	require.NoError(t, os.WriteFile(path, []byte("open_time,close\n1704067200000,42000\n"), 0o600))

	candles, err := marketdata.LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 42000.0, candles[0].Close)

	_, err = marketdata.LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
