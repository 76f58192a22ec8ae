// Package marketdata loads historical OHLCV bars for simulation.
//
// Headers are case-insensitive and unknown columns are ignored. The time column
// (time, timestamp, date, datetime or open_time) accepts RFC3339, "2006-01-02 15:04:05",
// "2006-01-02", UNIX seconds or UNIX milliseconds.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// LoadCSV reads bars from path, oldest first.
func LoadCSV(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads bars from r. Rows with an unparsable time, a close that is not a
// positive finite number, or a non-finite open/high/low/volume are skipped;
// duplicate timestamps keep the last row.
func ReadCSV(r io.Reader) ([]domain.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	byTime := make(map[int64]domain.Candle)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				row[h] = strings.TrimSpace(rec[j])
			}
		}

		ts := first(row, "time", "timestamp", "date", "datetime", "open_time")
		cp := first(row, "close", "adj close", "adj_close")
		if ts == "" || cp == "" {
			continue
		}
		t, err := parseTime(ts)
		if err != nil {
			continue
		}
		c, err := strconv.ParseFloat(cp, 64)
		if err != nil || !finite(c) || c <= 0 {
			continue
		}
		o := parseOr(first(row, "open"), c)
		h := parseOr(first(row, "high"), c)
		l := parseOr(first(row, "low"), c)
		v := parseOr(first(row, "volume", "vol"), 0)
		if !finite(o) || !finite(h) || !finite(l) || !finite(v) {
			continue
		}

		unix := t.Unix()
		byTime[unix] = domain.Candle{Time: unix, Open: o, High: h, Low: l, Close: c, Volume: v}
	}

	out := make([]domain.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Anything past year 5138 in seconds is really milliseconds.
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

func parseOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
