package router

import (
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/controller"

	"github.com/labstack/echo/v4"
)

type ImportRouter struct {
	controller *controller.ImportController
}

func NewImportRouter(controller *controller.ImportController) *ImportRouter {
	return &ImportRouter{controller: controller}
}

func (r *ImportRouter) Register(e *echo.Group, mw *middleware.Middleware) {
	group := e.Group("/import", mw.AuthMiddleware())
	group.GET("/calendar/preview", r.controller.PreviewCalendar)
	group.POST("/file/preview", r.controller.PreviewFile)
	group.POST("/confirm", r.controller.Confirm)
	group.POST("/rollback", r.controller.Rollback)
}
