package controller

import (
	"github.com/jonlee90/thepuppyday-sub014/core/controller"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/dto"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type ImportController struct {
	service *service.ImportService
	controller.BaseController
}

func NewImportController(service *service.ImportService) *ImportController {
	return &ImportController{
		service:        service,
		BaseController: controller.NewBaseController(),
	}
}

// PreviewCalendar lists unmapped calendar events as import candidates.
func (c *ImportController) PreviewCalendar(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	preview, appErr := c.service.PreviewCalendar(ctx.Request().Context(), adminID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, preview, "Import preview generated")
}

// PreviewFile parses an uploaded CSV/XLSX into import candidates.
func (c *ImportController) PreviewFile(ctx echo.Context) error {
	if _, ok := adminIDFromContext(ctx); !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Missing file upload")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Could not read uploaded file")
	}
	defer file.Close()

	preview, appErr := c.service.PreviewFile(ctx.Request().Context(), file, fileHeader.Filename)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, preview, "Import preview generated")
}

// Confirm creates appointments from the reviewed rows.
func (c *ImportController) Confirm(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.ConfirmImportRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if len(req.Rows) == 0 {
		return c.BadRequest(errors.ErrInvalidRequestData, "rows must not be empty")
	}

	result, appErr := c.service.Confirm(ctx.Request().Context(), adminID, req.Rows)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Import confirmed")
}

// Rollback removes everything one import batch created.
func (c *ImportController) Rollback(ctx echo.Context) error {
	adminID, ok := adminIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.RollbackRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if req.BatchID == "" {
		return c.BadRequest(errors.ErrInvalidRequestData, "batch_id is required")
	}

	deleted, appErr := c.service.Rollback(ctx.Request().Context(), adminID, req.BatchID)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, dto.RollbackResponse{BatchID: req.BatchID, Deleted: deleted}, "Import rolled back")
}

func adminIDFromContext(ctx echo.Context) (uuid.UUID, bool) {
	id, ok := ctx.Get(middleware.ContextKeyAdminID).(uuid.UUID)
	return id, ok
}
