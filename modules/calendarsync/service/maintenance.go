package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/storage"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"
)

const archiveBatchSize = 1000

// MaintenanceService runs the daily housekeeping: expired sync-log rows are
// archived to S3 before deletion, and stale quota counters are pruned.
type MaintenanceService struct {
	syncLogRepo repository.SyncLogRepository
	quotaRepo   repository.QuotaRepository
	uploader    storage.Uploader
	now         func() time.Time
}

func NewMaintenanceService(syncLogRepo repository.SyncLogRepository, quotaRepo repository.QuotaRepository, uploader storage.Uploader) *MaintenanceService {
	return &MaintenanceService{
		syncLogRepo: syncLogRepo,
		quotaRepo:   quotaRepo,
		uploader:    uploader,
		now:         time.Now,
	}
}

// RunDaily archives and deletes sync-log rows past retention, then prunes
// quota counters older than the log cutoff. Delete only runs after the
// archive upload succeeds, so a failed upload retries tomorrow instead of
// losing rows.
func (s *MaintenanceService) RunDaily(ctx context.Context) error {
	cutoff := s.now().AddDate(0, 0, -constants.SyncLogRetentionDays)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entries, err := s.syncLogRepo.ListOlderThan(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		if s.uploader != nil {
			data, err := json.Marshal(entries)
			if err != nil {
				return err
			}
			key := fmt.Sprintf("sync-logs/%s/%d.json", s.now().UTC().Format("2006/01/02"), s.now().UnixNano())
			if err := s.uploader.Upload(ctx, key, data, "application/json"); err != nil {
				logger.Error("MaintenanceService:RunDaily:Upload:Error", "error", err)
				return err
			}
		}

		// Delete the archived window up to the newest archived row, not the
		// retention cutoff, so rows appearing between list and delete survive.
		batchCutoff := entries[len(entries)-1].CreatedAt.Add(time.Millisecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		deleted, err := s.syncLogRepo.DeleteOlderThan(ctx, batchCutoff)
		if err != nil {
			return err
		}
		logger.Info("MaintenanceService:RunDaily:Archived", "rows", len(entries), "deleted", deleted)
		if len(entries) < archiveBatchSize {
			break
		}
	}

	// Quota counters only matter for the current day; keep a week for the
	// dashboard's trend view.
	pruneDay := s.now().UTC().AddDate(0, 0, -7).Format(quotaDayFormat)
	if err := s.quotaRepo.DeleteBefore(ctx, pruneDay); err != nil {
		logger.Error("MaintenanceService:RunDaily:PruneQuota:Error", "error", err)
		return err
	}
	return nil
}
