// Package policy holds the decision makers the core can be driven by: a remote
// inference sidecar and simple rule-based baselines.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

const invalidIndex = -1

// HTTPPolicy asks an inference sidecar for an action:
//
//	POST {base}/decide  {"observation":[...],"mode":"discrete"}
//	200                 {"action": 2} | {"action": [0.37]}
type HTTPPolicy struct {
	base string
	mode domain.Mode
	hc   *http.Client
}

func NewHTTPPolicy(baseURL string, mode domain.Mode, timeout time.Duration) *HTTPPolicy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPolicy{
		base: strings.TrimRight(baseURL, "/"),
		mode: mode,
		hc:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPolicy) Decide(ctx context.Context, observation []float64) (domain.RawAction, error) {
	body := map[string]any{
		"observation": observation,
		"mode":        p.mode,
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return domain.RawAction{}, err
	}

	u := p.base + "/decide"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bs))
	if err != nil {
		return domain.RawAction{}, fmt.Errorf("newrequest decide: %w (url=%s)", err, u)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.hc.Do(req)
	if err != nil {
		return domain.RawAction{}, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.RawAction{}, err
	}
	if res.StatusCode >= 300 {
		return domain.RawAction{}, fmt.Errorf("policy decide %d: %s", res.StatusCode, string(b))
	}
	return parseAction(b, p.mode)
}

// parseAction accepts a bare number or a one-element array in either mode.
func parseAction(raw []byte, mode domain.Mode) (domain.RawAction, error) {
	if !gjson.ValidBytes(raw) {
		return domain.RawAction{}, fmt.Errorf("policy response is not valid JSON")
	}
	action := gjson.GetBytes(raw, "action")
	if !action.Exists() {
		return domain.RawAction{}, fmt.Errorf("policy response has no action field")
	}

	var values []float64
	switch {
	case action.IsArray():
		for _, v := range action.Array() {
			if v.Type != gjson.Number {
				return domain.RawAction{}, fmt.Errorf("policy action element %q is not a number", v.Raw)
			}
			values = append(values, v.Float())
		}
	case action.Type == gjson.Number:
		values = []float64{action.Float()}
	default:
		return domain.RawAction{}, fmt.Errorf("policy action %q is not a number", action.Raw)
	}
	if len(values) == 0 {
		return domain.RawAction{}, fmt.Errorf("policy action is empty")
	}

	if mode == domain.ModeContinuous {
		return domain.RawAction{Vector: values}, nil
	}
	// Out-of-range indices are left to the resolver, which treats them as WAIT.
	// Non-integral values become -1 rather than being truncated onto a valid action.
	v := values[0]
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return domain.RawAction{Index: invalidIndex}, nil
	}
	return domain.RawAction{Index: int(v)}, nil
}
