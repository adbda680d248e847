package model

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stroke-risk-server/internal/domain"
)

// CachedPredictor memoizes results per record. Only records missing from the
// cache reach the wrapped model; results are merged back in record order.
type CachedPredictor struct {
	next  domain.Predictor
	cache *lru.Cache[string, domain.PredictionResult]
}

// NewCachedPredictor wraps next with an LRU cache holding size entries.
func NewCachedPredictor(next domain.Predictor, size int) (*CachedPredictor, error) {
	cache, err := lru.New[string, domain.PredictionResult](size)
	if err != nil {
		return nil, fmt.Errorf("prediction cache: %w", err)
	}
	return &CachedPredictor{next: next, cache: cache}, nil
}

// Predict serves cached records and forwards the rest in one call.
func (c *CachedPredictor) Predict(ctx context.Context, records []domain.PatientRecord) ([]domain.PredictionResult, error) {
	results := make([]domain.PredictionResult, len(records))
	keys := make([]string, len(records))

	var (
		missing []domain.PatientRecord
		slots   []int
	)
	for i, rec := range records {
		keys[i] = rec.Key()
		if res, ok := c.cache.Get(keys[i]); ok {
			results[i] = res
			continue
		}
		missing = append(missing, rec)
		slots = append(slots, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	scored, err := c.next.Predict(ctx, missing)
	if err != nil {
		var pe *domain.PipelineError
		if errors.As(err, &pe) && pe.Row > 0 && pe.Row <= len(slots) {
			// Report the row as the caller numbered it.
			shifted := *pe
			shifted.Row = slots[pe.Row-1] + 1
			return nil, &shifted
		}
		return nil, err
	}
	if len(scored) != len(missing) {
		return nil, fmt.Errorf("model returned %d results for %d records", len(scored), len(missing))
	}

	for j, res := range scored {
		i := slots[j]
		results[i] = res
		c.cache.Add(keys[i], res)
	}
	return results, nil
}

// Len returns the number of cached results.
func (c *CachedPredictor) Len() int {
	return c.cache.Len()
}

// Purge empties the cache.
func (c *CachedPredictor) Purge() {
	c.cache.Purge()
}

// Info describes the wrapped model.
func (c *CachedPredictor) Info() domain.ModelInfo {
	return c.next.Info()
}

// Close closes the wrapped model.
func (c *CachedPredictor) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
