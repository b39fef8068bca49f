package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
)

const demandSnapshotKey = "pricing:snapshot"

// CategoryStatsRepo is the analytics input of the demand pass.
type CategoryStatsRepo interface {
	CategoryStats(ctx context.Context) ([]models.CategoryStats, error)
}

// DemandService computes per-category demand scores and caches the
// resulting pricing snapshot in redis, so every price quote within the
// TTL observes the same inputs.
type DemandService struct {
	stats CategoryStatsRepo
	rdb   *redis.Client
	cfg   config.PricingConfig
}

func NewDemandService(stats CategoryStatsRepo, rdb *redis.Client, cfg config.PricingConfig) *DemandService {
	return &DemandService{stats: stats, rdb: rdb, cfg: cfg}
}

// Snapshot returns the current pricing snapshot, from cache when fresh.
// Redis being down degrades to computing on every call, never to an error.
func (s *DemandService) Snapshot(ctx context.Context) (*PricingSnapshot, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, demandSnapshotKey).Bytes()
		if err == nil {
			var snap PricingSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
			logger.Log.WithError(err).Warn("cached pricing snapshot is corrupt, recomputing")
		} else if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).Warn("pricing snapshot cache read failed")
		}
	}

	snap, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.rdb.Set(ctx, demandSnapshotKey, raw, s.cfg.DemandCacheTTL).Err(); err != nil {
				logger.Log.WithError(err).Warn("pricing snapshot cache write failed")
			}
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot so the next quote recomputes.
func (s *DemandService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, demandSnapshotKey).Err()
}

// compute builds a fresh snapshot from category analytics.
func (s *DemandService) compute(ctx context.Context) (*PricingSnapshot, error) {
	stats, err := s.stats.CategoryStats(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load category stats failed")
	}

	var totalViews float64
	for _, cs := range stats {
		totalViews += cs.AvgViews
	}
	globalAvg := 0.0
	if len(stats) > 0 {
		globalAvg = totalViews / float64(len(stats))
	}

	now := time.Now()
	snap := &PricingSnapshot{
		Version:             fmt.Sprintf("%d", now.Unix()),
		TakenAt:             now,
		InflationMultiplier: s.cfg.Inflation,
		DemandScores:        make(map[string]int, len(stats)),
	}
	for _, cs := range stats {
		snap.DemandScores[cs.Category] = demandScore(cs, globalAvg, s.cfg.ScarcityListings)
	}

	logger.Log.WithFields(logrus.Fields{"categories": len(stats), "version": snap.Version}).
		Debug("pricing snapshot recomputed")
	return snap, nil
}

// demandScore folds the analytics of one category into a 0..100 score:
// up to 50 points for views above the global average, up to 30 for the
// swap completion rate and 20 for scarcity.
func demandScore(cs models.CategoryStats, globalAvgViews float64, scarcityThreshold int) int {
	viewRatio := 1.0
	if globalAvgViews > 0 {
		viewRatio = cs.AvgViews / globalAvgViews
	}
	if viewRatio > 2 {
		viewRatio = 2
	}
	score := 25 * viewRatio

	if cs.ListingCount > 0 {
		swapRate := float64(cs.CompletedSwaps) / float64(cs.ListingCount)
		if swapRate > 1 {
			swapRate = 1
		}
		score += 30 * swapRate
	}

	if cs.ListingCount < scarcityThreshold && viewRatio > 1 {
		score += 20
	}

	rounded := int(score + 0.5)
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
