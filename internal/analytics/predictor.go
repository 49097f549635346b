package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/model"
	"github.com/crowdpulse/crowdfeed/internal/workerpool"
)

// TrendSource supplies hourly scan trends for an area.
type TrendSource interface {
	HourlyTrend(ctx context.Context, areaID int64) ([]model.HourlyTrend, error)
}

// Prediction is the expected net flow for the next hour.
type Prediction struct {
	AreaID      int64     `json:"areaId"`
	NextHour    int       `json:"nextHour"`
	Points      int       `json:"points"`
	Available   bool      `json:"available"`
	ComputedAt  time.Time `json:"computedAt"`
	LastHourKey string    `json:"lastHour,omitempty"`
}

type cachedPrediction struct {
	p       Prediction
	expires time.Time
}

// Predictor computes moving-average predictions and caches them for TTL.
type Predictor struct {
	src     TrendSource
	window  int
	workers int
	ttl     time.Duration
	log     *logger.Logger

	mu    sync.Mutex
	cache map[int64]cachedPrediction
	now   func() time.Time
}

// NewPredictor creates a predictor. window <= 0 uses the default window.
func NewPredictor(src TrendSource, window, workers int, ttl time.Duration, log *logger.Logger) *Predictor {
	if log == nil {
		log = logger.Nop()
	}
	return &Predictor{
		src:     src,
		window:  window,
		workers: max(workers, 1),
		ttl:     ttl,
		log:     log.With("analytics"),
		cache:   make(map[int64]cachedPrediction),
		now:     time.Now,
	}
}

// Predict returns the prediction for one area. Failures are returned as
// errors; nothing is made up in their place.
func (p *Predictor) Predict(ctx context.Context, areaID int64) (Prediction, error) {
	if cached, ok := p.cached(areaID); ok {
		return cached, nil
	}

	trend, err := p.src.HourlyTrend(ctx, areaID)
	if err != nil {
		return Prediction{}, fmt.Errorf("predicting area %d: %w", areaID, err)
	}

	pred := Prediction{AreaID: areaID, Points: len(trend), ComputedAt: p.now()}
	pred.NextHour, pred.Available = MovingAverage(trend, p.window)
	if len(trend) > 0 {
		pred.LastHourKey = trend[len(trend)-1].Hour
	}

	p.mu.Lock()
	p.cache[areaID] = cachedPrediction{p: pred, expires: pred.ComputedAt.Add(p.ttl)}
	p.mu.Unlock()
	return pred, nil
}

// PredictAll predicts every area concurrently. Areas that failed are logged
// and left out of the result.
func (p *Predictor) PredictAll(ctx context.Context, areaIDs []int64) map[int64]Prediction {
	results := workerpool.Map(ctx, areaIDs, p.workers, p.Predict)

	out := make(map[int64]Prediction, len(areaIDs))
	for i, r := range results {
		if r.Err != nil {
			p.log.Warn("Prediction unavailable", "area", areaIDs[i], "error", r.Err)
			continue
		}
		out[areaIDs[i]] = r.Value
	}
	return out
}

// Invalidate drops the cached prediction for an area, e.g. after a reset.
func (p *Predictor) Invalidate(areaID int64) {
	p.mu.Lock()
	delete(p.cache, areaID)
	p.mu.Unlock()
}

func (p *Predictor) cached(areaID int64) (Prediction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.cache[areaID]
	if !ok || !p.now().Before(c.expires) {
		return Prediction{}, false
	}
	return c.p, true
}
