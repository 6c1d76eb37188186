package service

import (
	"context"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
)

const quotaDayFormat = "2006-01-02"

type QuotaUsage struct {
	Count      int       `json:"count"`
	Limit      int       `json:"limit"`
	Percentage float64   `json:"percentage"`
	ResetAt    time.Time `json:"reset_at"`
}

// QuotaService counts provider API calls per calendar day and signals when
// non-critical work should be deferred.
type QuotaService struct {
	repo           repository.QuotaRepository
	dailyLimit     int
	highWaterPct   int
	now            func() time.Time
}

func NewQuotaService(repo repository.QuotaRepository, dailyLimit, highWaterPct int) *QuotaService {
	return &QuotaService{
		repo:         repo,
		dailyLimit:   dailyLimit,
		highWaterPct: highWaterPct,
		now:          time.Now,
	}
}

// RecordCall increments today's counter. Counting failures are logged and
// swallowed: losing a quota tick is cheaper than failing the sync it counts.
func (s *QuotaService) RecordCall(ctx context.Context) {
	day := s.now().UTC().Format(quotaDayFormat)
	if _, err := s.repo.Increment(ctx, day); err != nil {
		logger.Error("QuotaService:RecordCall:Error", "error", err, "day", day)
	}
}

func (s *QuotaService) GetUsage(ctx context.Context) (*QuotaUsage, error) {
	now := s.now().UTC()
	day := now.Format(quotaDayFormat)
	count, err := s.repo.GetCount(ctx, day)
	if err != nil {
		return nil, err
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	pct := 0.0
	if s.dailyLimit > 0 {
		pct = float64(count) / float64(s.dailyLimit) * 100
	}
	return &QuotaUsage{
		Count:      count,
		Limit:      s.dailyLimit,
		Percentage: pct,
		ResetAt:    midnight,
	}, nil
}

// ShouldThrottle reports whether usage has crossed the high-water mark.
// Callers defer non-critical operations (bulk sync, webhook refetch) but
// never manual sync.
func (s *QuotaService) ShouldThrottle(ctx context.Context) bool {
	usage, err := s.GetUsage(ctx)
	if err != nil {
		logger.Error("QuotaService:ShouldThrottle:Error", "error", err)
		return false
	}
	return usage.Percentage >= float64(s.highWaterPct)
}
