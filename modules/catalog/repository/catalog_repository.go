package repository

import (
	"context"
	"database/sql"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/catalog/entity"
)

type CatalogRepository interface {
	ListServices(ctx context.Context) ([]entity.GroomService, error)
	GetServiceByName(ctx context.Context, name string) (*entity.GroomService, error)
	ListAddOns(ctx context.Context) ([]entity.AddOn, error)
}

type catalogRepository struct {
	db database.Database
}

func NewCatalogRepository(db database.Database) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListServices(ctx context.Context) ([]entity.GroomService, error) {
	var services []entity.GroomService
	query := `
		SELECT id, created_at, updated_at, name, duration_minutes, price_cents, is_active
		FROM services
		WHERE is_active = true
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &services, query); err != nil {
		logger.Error("CatalogRepository:ListServices:Error", "error", err)
		return nil, err
	}
	return services, nil
}

// GetServiceByName matches case-insensitively; import rows carry service
// names typed by humans.
func (r *catalogRepository) GetServiceByName(ctx context.Context, name string) (*entity.GroomService, error) {
	var service entity.GroomService
	query := `
		SELECT id, created_at, updated_at, name, duration_minutes, price_cents, is_active
		FROM services
		WHERE LOWER(name) = LOWER($1) AND is_active = true
	`
	if err := r.db.GetContext(ctx, &service, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("CatalogRepository:GetServiceByName:Error", "error", err, "name", name)
		return nil, err
	}
	return &service, nil
}

func (r *catalogRepository) ListAddOns(ctx context.Context) ([]entity.AddOn, error) {
	var addOns []entity.AddOn
	query := `
		SELECT id, created_at, updated_at, name, duration_minutes, price_cents, is_active
		FROM addons
		WHERE is_active = true
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &addOns, query); err != nil {
		logger.Error("CatalogRepository:ListAddOns:Error", "error", err)
		return nil, err
	}
	return addOns, nil
}
