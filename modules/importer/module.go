package importer

import (
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/config"
	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/middleware"
	apptRepo "github.com/jonlee90/thepuppyday-sub014/modules/appointment/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync"
	catalogRepo "github.com/jonlee90/thepuppyday-sub014/modules/catalog/repository"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/controller"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/router"
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/service"

	"github.com/labstack/echo/v4"
)

func Init(e *echo.Group, db database.Database, mw *middleware.Middleware, syncModule *calendarsync.Module, cfg *config.Config) error {
	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return err
	}

	appointmentRepo := apptRepo.NewAppointmentRepository(db)
	catalog := catalogRepo.NewCatalogRepository(db)
	detector := service.NewDuplicateDetector(appointmentRepo, cfg.Sync.DuplicateWindowMinutes)

	svc := service.NewImportService(
		appointmentRepo,
		catalog,
		syncModule.ConnRepo,
		syncModule.MappingRepo,
		syncModule.Provider,
		syncModule.TokenSvc,
		syncModule.SyncSvc,
		detector,
		loc,
	)
	ctrl := controller.NewImportController(svc)
	router.NewImportRouter(ctrl).Register(e, mw)
	return nil
}
