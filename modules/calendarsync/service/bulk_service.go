package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/cache"
	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/core/queue"
	"github.com/jonlee90/thepuppyday-sub014/core/utils"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/repository"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	bulkJobKeyPrefix = "sync:bulk:job:"
	bulkJobTTL       = 24 * time.Hour
)

type BulkJobStatus string

const (
	BulkStatusPending   BulkJobStatus = "pending"
	BulkStatusRunning   BulkJobStatus = "running"
	BulkStatusCompleted BulkJobStatus = "completed"
	BulkStatusCancelled BulkJobStatus = "cancelled"
	BulkStatusThrottled BulkJobStatus = "throttled"
)

// BulkJob is the job record kept in redis while a bulk sync runs and for a
// day after, so the dashboard can poll it.
type BulkJob struct {
	ID        string        `json:"id"`
	AdminID   uuid.UUID     `json:"admin_id"`
	Status    BulkJobStatus `json:"status"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
}

// BulkSyncPayload is the asynq task body.
type BulkSyncPayload struct {
	JobID   string    `json:"job_id"`
	AdminID uuid.UUID `json:"admin_id"`
}

// BulkService pushes every eligible appointment, in batches, off the request
// path.
type BulkService struct {
	connRepo repository.ConnectionRepository
	apptRepo apptRepo.AppointmentRepository
	syncSvc  *SyncService
	quotaSvc *QuotaService
	cache    cache.Cache
	queue    *queue.Queue
	now      func() time.Time
}

func NewBulkService(
	connRepo repository.ConnectionRepository,
	appointmentRepo apptRepo.AppointmentRepository,
	syncSvc *SyncService,
	quotaSvc *QuotaService,
	c cache.Cache,
	q *queue.Queue,
) *BulkService {
	return &BulkService{
		connRepo: connRepo,
		apptRepo: appointmentRepo,
		syncSvc:  syncSvc,
		quotaSvc: quotaSvc,
		cache:    c,
		queue:    q,
		now:      time.Now,
	}
}

// Start enqueues a bulk sync job and returns its handle immediately.
func (s *BulkService) Start(ctx context.Context, adminID uuid.UUID) (*BulkJob, *errors.AppError) {
	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil {
		return nil, errors.NewAppError(errors.ErrConnectionInactive, "no active calendar connection", nil)
	}
	if conn.Paused {
		return nil, errors.NewAppError(errors.ErrSyncPaused, "sync is paused for this connection", nil)
	}

	job := &BulkJob{
		ID:        utils.GenerateID(),
		AdminID:   adminID,
		Status:    BulkStatusPending,
		StartedAt: s.now(),
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to record bulk job", err)
	}

	payload := BulkSyncPayload{JobID: job.ID, AdminID: adminID}
	if err := s.queue.Enqueue(ctx, queue.TypeBulkSync, payload, asynq.Queue(queue.QueueSync)); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to enqueue bulk sync", err)
	}
	logger.Info("BulkService:Start", "job_id", job.ID, "admin_id", adminID)
	return job, nil
}

// Run executes the job inside the worker pool. Cancellation is honored at
// batch boundaries so a shutting-down worker leaves the job resumable by a
// fresh Start.
func (s *BulkService) Run(ctx context.Context, jobID string, adminID uuid.UUID) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		logger.Warn("BulkService:Run:UnknownJob", "job_id", jobID)
		return nil
	}

	conn, err := s.connRepo.GetActiveByAdminID(ctx, adminID)
	if err != nil {
		return err
	}
	if conn == nil || conn.Paused {
		job.Status = BulkStatusCancelled
		return s.saveJob(ctx, job)
	}

	ids, err := s.apptRepo.ListIDsForSync(ctx)
	if err != nil {
		return err
	}
	job.Total = len(ids)
	job.Status = BulkStatusRunning
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	logger.Info("BulkService:Run:Start", "job_id", jobID, "total", job.Total)

	for start := 0; start < len(ids); start += constants.BulkSyncBatchSize {
		if ctx.Err() != nil {
			job.Status = BulkStatusCancelled
			_ = s.saveJob(context.WithoutCancel(ctx), job)
			return ctx.Err()
		}
		if s.quotaSvc.ShouldThrottle(ctx) {
			logger.Warn("BulkService:Run:Throttled", "job_id", jobID, "processed", job.Processed)
			job.Status = BulkStatusThrottled
			return s.saveJob(ctx, job)
		}

		end := start + constants.BulkSyncBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			appErr := s.syncSvc.SyncAppointment(ctx, adminID, id, entity.OpCreate, false)
			job.Processed++
			if appErr != nil {
				job.Failed++
			} else {
				job.Succeeded++
			}
		}
		if err := s.saveJob(ctx, job); err != nil {
			logger.Error("BulkService:Run:Save:Error", "error", err, "job_id", jobID)
		}
	}

	job.Status = BulkStatusCompleted
	logger.Info("BulkService:Run:Done", "job_id", jobID, "succeeded", job.Succeeded, "failed", job.Failed)
	return s.saveJob(ctx, job)
}

// GetJob returns the job record, or nil when unknown or expired.
func (s *BulkService) GetJob(ctx context.Context, jobID string) (*BulkJob, error) {
	data, err := s.cache.Client().Get(ctx, bulkJobKeyPrefix+jobID).Bytes()
	if err != nil {
		if cache.IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var job BulkJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BulkService) saveJob(ctx context.Context, job *BulkJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.cache.Client().Set(ctx, bulkJobKeyPrefix+job.ID, data, bulkJobTTL).Err()
}
