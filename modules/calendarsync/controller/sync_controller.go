package controller

import (
	"strconv"

	"github.com/jonlee90/thepuppyday-sub014/core/controller"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type SyncController struct {
	syncSvc *service.SyncService
	bulkSvc *service.BulkService
	controller.BaseController
}

func NewSyncController(syncSvc *service.SyncService, bulkSvc *service.BulkService) *SyncController {
	return &SyncController{
		syncSvc:        syncSvc,
		bulkSvc:        bulkSvc,
		BaseController: controller.NewBaseController(),
	}
}

// ManualSync pushes one appointment now. With force set the push bypasses
// the eligibility check and the paused flag; without it the request obeys
// the same gates as automatic sync.
func (c *SyncController) ManualSync(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.ManualSyncRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if req.AppointmentID == uuid.Nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "appointment_id is required")
	}
	op := entity.SyncOperation(req.Operation)
	switch op {
	case entity.OpCreate, entity.OpUpdate, entity.OpDelete:
	case "":
		op = entity.OpUpdate
	default:
		return c.BadRequest(errors.ErrInvalidRequestData, "operation must be create, update or delete")
	}

	if appErr := c.syncSvc.SyncAppointment(ctx.Request().Context(), adminID, req.AppointmentID, op, req.Force); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Appointment synced")
}

// BulkSync enqueues a full push of every eligible appointment.
func (c *SyncController) BulkSync(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	job, appErr := c.bulkSvc.Start(ctx.Request().Context(), adminID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, job, "Bulk sync started")
}

// BulkSyncStatus reports progress of a running or recent job.
func (c *SyncController) BulkSyncStatus(ctx echo.Context) error {
	if _, ok := adminIDFromContext(ctx); !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	job, err := c.bulkSvc.GetJob(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to load bulk job", err)
	}
	if job == nil {
		return c.NotFound(errors.ErrNotFound, "Bulk job not found")
	}
	return c.SuccessResponse(ctx, job, "Bulk job status retrieved")
}

// Status is the sync dashboard payload.
func (c *SyncController) Status(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	report, appErr := c.syncSvc.Status(ctx.Request().Context(), adminID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, report, "Sync status retrieved")
}

// Resume clears a tripped circuit breaker.
func (c *SyncController) Resume(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if appErr := c.syncSvc.Resume(ctx.Request().Context(), adminID); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Sync resumed")
}

// Activity lists recent sync log rows for one appointment.
func (c *SyncController) Activity(ctx echo.Context) error {
	if _, ok := adminIDFromContext(ctx); !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	appointmentID, err := uuid.Parse(ctx.Param("appointmentId"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid appointment id")
	}
	limit := 20
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, appErr := c.syncSvc.RecentActivity(ctx.Request().Context(), appointmentID, limit)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, entries, "Sync activity retrieved")
}

// UpdateSettings saves the admin's sync preferences.
func (c *SyncController) UpdateSettings(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.UpdateSettingsRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if len(req.SyncStatuses) == 0 {
		return c.BadRequest(errors.ErrInvalidRequestData, "sync_statuses must not be empty")
	}

	appErr := c.syncSvc.UpdateSettings(ctx.Request().Context(), adminID,
		req.AutoSyncEnabled, req.SyncStatuses, req.SyncPastAppointments, req.SyncCompleted)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Sync settings updated")
}
