package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type rateSource interface {
	Rates(ctx context.Context, base string) (map[string]float64, error)
}

type rateCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CurrencyService converts expense amounts into a company's default
// currency. Rates are fetched per base currency and cached so bursts
// of submissions do not hammer the upstream API.
type CurrencyService struct {
	source rateSource
	cache  rateCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCurrencyService wires the rate source with an optional cache.
func NewCurrencyService(source rateSource, cache rateCache, ttl time.Duration, logger *zap.Logger) *CurrencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CurrencyService{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Convert returns amount expressed in the target currency.
func (s *CurrencyService) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "currency codes are required")
	}
	if from == to {
		return amount, nil
	}

	rates, err := s.rates(ctx, from)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[to]
	if !ok || rate <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no conversion rate from %s to %s", from, to))
	}
	return amount * rate, nil
}

func (s *CurrencyService) rates(ctx context.Context, base string) (map[string]float64, error) {
	key := "fx:rates:" + base

	if s.cache != nil {
		var cached map[string]float64
		if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	rates, err := s.source.Rates(ctx, base)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch conversion rates")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rates, s.ttl); err != nil {
			s.logger.Warn("failed to cache conversion rates", zap.String("base", base), zap.Error(err))
		}
	}
	return rates, nil
}
