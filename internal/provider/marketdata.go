package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/piquette/finance-go/quote"
	"go.uber.org/zap"
)

// MarketData is the opaque price capability consumed by the proposal engine,
// the lifecycle machine and the mark-to-market job.
type MarketData interface {
	FetchPrice(ctx context.Context, ticker string) (float64, error)
}

// YahooMarketData fetches real-time quotes from Yahoo Finance.
type YahooMarketData struct {
	Logger *zap.Logger
}

func (y *YahooMarketData) FetchPrice(ctx context.Context, ticker string) (float64, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return 0, fmt.Errorf("empty ticker")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := quote.Get(ticker)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", ticker, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("quote %s: no market price", ticker)
	}
	if y != nil && y.Logger != nil {
		y.Logger.Debug("quote fetched",
			zap.String("ticker", ticker),
			zap.Float64("price", q.RegularMarketPrice),
		)
	}
	return q.RegularMarketPrice, nil
}

// StaticMarketData serves a fixed price table. Used in dev mode and tests.
type StaticMarketData struct {
	mu     sync.RWMutex
	Prices map[string]float64
}

func NewStaticMarketData(prices map[string]float64) *StaticMarketData {
	if prices == nil {
		prices = map[string]float64{}
	}
	return &StaticMarketData{Prices: prices}
}

func (s *StaticMarketData) FetchPrice(ctx context.Context, ticker string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.Prices[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return p, nil
}

func (s *StaticMarketData) SetPrice(ticker string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prices[strings.ToUpper(strings.TrimSpace(ticker))] = price
}
