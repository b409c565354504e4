package fx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Default upstream endpoints; overridable through config for tests and
// regional mirrors.
const (
	DefaultPrimaryBaseURL   = "https://api.exchangeratesapi.io/v1"
	DefaultSecondaryBaseURL = "https://api.frankfurter.app"
	DefaultTertiaryBaseURL  = "https://api.exchangerate.host"
)

const maxDiagnosticBytes = 512

// HTTPError carries a non-2xx upstream status with a truncated body snippet.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// ChainConfig selects and parameterizes the provider chain.
type ChainConfig struct {
	APIKey       string // empty skips the keyed primary provider entirely
	PrimaryURL   string
	SecondaryURL string
	TertiaryURL  string
}

// NewChain assembles the production provider chain in priority order.
func NewChain(cfg ChainConfig) *Resolver {
	client := &http.Client{Timeout: 10 * time.Second}

	var providers []Provider
	if cfg.APIKey != "" {
		providers = append(providers, &keyedConvertProvider{
			base:   orDefault(cfg.PrimaryURL, DefaultPrimaryBaseURL),
			apiKey: cfg.APIKey,
			client: client,
		})
	}
	providers = append(providers,
		&frankfurterProvider{
			base:   orDefault(cfg.SecondaryURL, DefaultSecondaryBaseURL),
			client: client,
		},
		&lastResortProvider{
			base:   orDefault(cfg.TertiaryURL, DefaultTertiaryBaseURL),
			client: client,
		},
	)
	return NewResolver(providers...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// keyedConvertProvider is the paid primary tier: a direct pair conversion
// behind an API key. Older API revisions named the result field differently,
// so both names are accepted.
type keyedConvertProvider struct {
	base   string
	apiKey string
	client *http.Client
}

func (p *keyedConvertProvider) Name() string { return "exchangeratesapi" }

func (p *keyedConvertProvider) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("access_key", p.apiKey)
	q.Set("from", from)
	q.Set("to", to)
	q.Set("amount", amount.String())

	body, err := getJSON(ctx, p.client, p.base+"/convert?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}
	if result, ok := numericField(body, "result", "conversion_result"); ok {
		return result, nil
	}
	return decimal.Zero, fmt.Errorf("no numeric result in response: %s", snippet(body))
}

// frankfurterProvider is the free secondary tier. The full amount goes into
// the query so the returned rates map already holds the converted value.
type frankfurterProvider struct {
	base   string
	client *http.Client
}

func (p *frankfurterProvider) Name() string { return "frankfurter" }

func (p *frankfurterProvider) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("from", from)
	q.Set("to", to)

	body, err := getJSON(ctx, p.client, p.base+"/latest?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}
	rates, ok := body["rates"].(map[string]any)
	if !ok {
		return decimal.Zero, fmt.Errorf("no rates object in response: %s", snippet(body))
	}
	if converted, ok := numericField(rates, to); ok {
		return converted, nil
	}
	return decimal.Zero, fmt.Errorf("no numeric rate for %s in response: %s", to, snippet(body))
}

// lastResortProvider is the tertiary tier. A response that omits the success
// flag defaults to success; a present-but-false flag is a semantic failure.
type lastResortProvider struct {
	base   string
	client *http.Client
}

func (p *lastResortProvider) Name() string { return "exchangerate.host" }

func (p *lastResortProvider) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("amount", amount.String())

	body, err := getJSON(ctx, p.client, p.base+"/convert?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}
	if success, present := body["success"].(bool); present && !success {
		return decimal.Zero, fmt.Errorf("upstream signaled failure: %s", snippet(body))
	}
	if result, ok := numericField(body, "result", "conversion_result"); ok {
		return result, nil
	}
	return decimal.Zero, fmt.Errorf("no numeric result in response: %s", snippet(body))
}

func getJSON(ctx context.Context, client *http.Client, rawURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: truncate(string(raw))}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w: %s", err, truncate(string(raw)))
	}
	return body, nil
}

// numericField returns the first key holding a JSON number. Strings and nulls
// are rejected; upstreams have been observed returning "null" results on
// partially-degraded pairs.
func numericField(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		num, ok := m[key].(json.Number)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(num.String())
		if err != nil {
			continue
		}
		return d, true
	}
	return decimal.Zero, false
}

func snippet(body map[string]any) string {
	raw, err := json.Marshal(body)
	if err != nil {
		return "<unencodable>"
	}
	return truncate(string(raw))
}

func truncate(s string) string {
	if len(s) > maxDiagnosticBytes {
		return s[:maxDiagnosticBytes] + "..."
	}
	return s
}
