package notification

import (
	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/controller"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/router"
	"github.com/jonlee90/thepuppyday-sub014/modules/notification/service"

	"github.com/labstack/echo/v4"
)

func Init(e *echo.Group, db database.Database, mw *middleware.Middleware) *service.NotificationService {
	repo := repository.NewNotificationRepository(db)
	svc := service.NewNotificationService(repo)
	ctrl := controller.NewNotificationController(svc)

	router.NewNotificationRouter(ctrl).Register(e, mw)

	return svc
}
