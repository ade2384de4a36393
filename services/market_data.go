package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Market data constants
const (
	TwelveDataBaseURL   = "https://api.twelvedata.com"
	QuoteCacheTTL       = 60 * time.Second
	QuoteRequestTimeout = 10 * time.Second
	SyntheticJitter     = 0.05 // ±5% around the base price
	SyntheticBaseVolume = 1_000_000
)

// Quote is an ephemeral snapshot of one ticker's market data. Synthetic marks
// locally generated fallback data that never came from the provider.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	Volume        int64     `json:"volume"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
	Synthetic     bool      `json:"synthetic"`
}

// twelveDataQuote represents the provider's quote payload. Numeric fields
// arrive as strings; an embedded code/message pair signals provider errors.
type twelveDataQuote struct {
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Close         string `json:"close"`
	Volume        string `json:"volume"`
	PercentChange string `json:"percent_change"`
	Code          int    `json:"code"`
	Message       string `json:"message"`
}

// tickerAliases maps informal names to their B3 symbols
var tickerAliases = map[string]string{
	"PETROBRAS": "PETR4",
	"VALE":      "VALE3",
	"ITAU":      "ITUB4",
	"BRADESCO":  "BBDC4",
	"AMBEV":     "ABEV3",
	"MAGALU":    "MGLU3",
}

// syntheticBasePrices anchors fallback quotes for frequently monitored
// tickers; unknown tickers derive a base from the symbol itself.
var syntheticBasePrices = map[string]float64{
	"PETR4": 38.20,
	"VALE3": 61.80,
	"ITUB4": 33.45,
	"BBDC4": 15.10,
	"ABEV3": 12.75,
	"MGLU3": 2.34,
	"WEGE3": 38.90,
	"BBAS3": 28.40,
	"B3SA3": 11.05,
	"LREN3": 17.60,
}

// MarketDataService fetches quotes from Twelve Data, consulting the injected
// cache first and falling back to synthetic data when the provider fails.
// GetQuote never returns an error to callers: an evaluation pass must not
// stall because one ticker's provider call failed.
type MarketDataService struct {
	apiKey     string
	baseURL    string
	cache      *QuoteCache
	httpClient *http.Client
}

// NewMarketDataService creates a market data client backed by cache
func NewMarketDataService(apiKey string, cache *QuoteCache) *MarketDataService {
	return &MarketDataService{
		apiKey:  apiKey,
		baseURL: TwelveDataBaseURL,
		cache:   cache,
		httpClient: &http.Client{
			Timeout: QuoteRequestTimeout,
		},
	}
}

// NormalizeTicker uppercases the symbol, strips exchange suffixes and maps
// known aliases to their canonical form.
func NormalizeTicker(raw string) string {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	for _, suffix := range []string{".SA", ".SAO"} {
		symbol = strings.TrimSuffix(symbol, suffix)
	}
	if canonical, ok := tickerAliases[symbol]; ok {
		return canonical
	}
	return symbol
}

// GetQuote returns a usable quote for ticker. Provider failures of any kind
// (timeout, non-200, provider error code, missing fields) degrade to a
// synthetic quote instead of surfacing an error.
func (s *MarketDataService) GetQuote(ticker string) *Quote {
	var cached Quote
	if s.cache.Get(ticker, &cached) {
		return &cached
	}

	symbol := NormalizeTicker(ticker)
	quote, err := s.fetchQuote(symbol)
	if err != nil {
		log.Printf("Quote fetch failed for %s, using synthetic data: %v", symbol, err)
		return syntheticQuote(symbol)
	}

	// Synthetic quotes are never cached so the next pass retries the provider.
	s.cache.Set(ticker, quote, QuoteCacheTTL)
	return quote
}

// fetchQuote issues one bounded-timeout request to the provider
func (s *MarketDataService) fetchQuote(symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s",
		s.baseURL, url.QueryEscape(symbol), url.QueryEscape(s.apiKey))

	resp, err := s.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload twelveDataQuote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// The provider reports errors inside a 200 body (401, 404, 429...)
	if payload.Code != 0 && payload.Code != http.StatusOK {
		return nil, fmt.Errorf("provider error %d: %s", payload.Code, payload.Message)
	}

	priceField := payload.Price
	if priceField == "" {
		priceField = payload.Close
	}
	if priceField == "" {
		return nil, fmt.Errorf("response missing price for %s", symbol)
	}

	return &Quote{
		Ticker:        symbol,
		Price:         parseFloatOrZero(priceField),
		Volume:        parseIntOrZero(payload.Volume),
		ChangePercent: parseFloatOrZero(payload.PercentChange),
		Timestamp:     time.Now().UTC(),
		Synthetic:     false,
	}, nil
}

// syntheticQuote builds a fallback quote from the static base price with
// bounded random jitter, tagged so consumers can tell it apart.
func syntheticQuote(symbol string) *Quote {
	base, ok := syntheticBasePrices[symbol]
	if !ok {
		base = derivedBasePrice(symbol)
	}

	jitter := (rand.Float64()*2 - 1) * SyntheticJitter
	price := math.Round(base*(1+jitter)*100) / 100

	return &Quote{
		Ticker:        symbol,
		Price:         price,
		Volume:        int64(SyntheticBaseVolume * (1 + jitter)),
		ChangePercent: math.Round(jitter*100*100) / 100,
		Timestamp:     time.Now().UTC(),
		Synthetic:     true,
	}
}

// derivedBasePrice gives unknown tickers a stable base in the 10.00-99.99
// range so repeated fallbacks stay close to each other.
func derivedBasePrice(symbol string) float64 {
	var h uint32
	for _, r := range symbol {
		h = h*31 + uint32(r)
	}
	return 10.0 + float64(h%9000)/100.0
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntOrZero(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// Some plans return volume as a decimal string
		return int64(parseFloatOrZero(s))
	}
	return v
}
