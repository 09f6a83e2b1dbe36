package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPFeed reads rates from a JSON endpoint answering
// GET <base_url>?base=USD with {"base":"USD","rates":{"EUR":0.91,...}}.
type HTTPFeed struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

func NewHTTPFeed(baseURL, apiKey string) (*HTTPFeed, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("rate feed url is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("RATE_FEED_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &HTTPFeed{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// NewHTTPFeedFromEnv uses RATE_FEED_URL and RATE_FEED_API_KEY.
func NewHTTPFeedFromEnv() (*HTTPFeed, error) {
	return NewHTTPFeed(os.Getenv("RATE_FEED_URL"), os.Getenv("RATE_FEED_API_KEY"))
}

type feedResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (f *HTTPFeed) FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	endpoint := f.baseURL
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	endpoint += sep + url.Values{"base": {base}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.Header.Set(f.apiKeyHdr, f.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rate feed error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode rate feed: %w", err)
	}
	if parsed.Base != "" && !strings.EqualFold(parsed.Base, base) {
		return nil, fmt.Errorf("rate feed answered base %s, asked %s", parsed.Base, base)
	}
	return parsed.Rates, nil
}
