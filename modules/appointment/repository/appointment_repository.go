package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/database"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"
	"github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"

	"github.com/google/uuid"
)

// AppointmentRepository is the engine's only doorway into the appointment
// store. The booking wizard and admin CRUD own the rest of the table's
// lifecycle.
type AppointmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*entity.Detail, error)
	ListIDsForSync(ctx context.Context) ([]uuid.UUID, error)
	FindByCustomerEmailAndDay(ctx context.Context, email string, dayStart, dayEnd time.Time) ([]entity.Detail, error)

	// Import flow
	EnsureCustomer(ctx context.Context, name, email, phone string) (uuid.UUID, error)
	EnsurePet(ctx context.Context, customerID uuid.UUID, name string) (uuid.UUID, error)
	CreateImported(ctx context.Context, appt *entity.Appointment, batchID string) (*entity.Appointment, error)
	LinkAddOn(ctx context.Context, appointmentID, addonID uuid.UUID) error
	ListByImportBatch(ctx context.Context, batchID string) ([]entity.Appointment, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type appointmentRepository struct {
	db database.Database
}

func NewAppointmentRepository(db database.Database) AppointmentRepository {
	return &appointmentRepository{db: db}
}

const detailColumns = `
	a.id, a.created_at, a.updated_at, a.customer_id, a.pet_id, a.service_id,
	a.start_time, a.status, a.notes, a.import_batch_id,
	c.name AS customer_name, c.email AS customer_email, c.phone AS customer_phone,
	p.name AS pet_name,
	s.name AS service_name, s.duration_minutes AS service_duration_minutes
`

const detailJoins = `
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id
	JOIN pets p ON p.id = a.pet_id
	JOIN services s ON s.id = a.service_id
`

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error) {
	var appt entity.Appointment
	query := `
		SELECT id, created_at, updated_at, customer_id, pet_id, service_id, start_time, status, notes, import_batch_id
		FROM appointments
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("AppointmentRepository:GetByID:Error", "error", err, "appointment_id", id)
		return nil, err
	}
	return &appt, nil
}

func (r *appointmentRepository) GetDetail(ctx context.Context, id uuid.UUID) (*entity.Detail, error) {
	var detail entity.Detail
	query := `SELECT ` + detailColumns + detailJoins + ` WHERE a.id = $1`
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("AppointmentRepository:GetDetail:Error", "error", err, "appointment_id", id)
		return nil, err
	}

	addOns, err := r.getAddOns(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.AddOns = addOns
	return &detail, nil
}

func (r *appointmentRepository) getAddOns(ctx context.Context, appointmentID uuid.UUID) ([]entity.AddOnSnapshot, error) {
	var addOns []entity.AddOnSnapshot
	query := `
		SELECT ao.name, ao.duration_minutes
		FROM appointment_addons aa
		JOIN addons ao ON ao.id = aa.addon_id
		WHERE aa.appointment_id = $1
		ORDER BY ao.name
	`
	if err := r.db.SelectContext(ctx, &addOns, query, appointmentID); err != nil {
		logger.Error("AppointmentRepository:getAddOns:Error", "error", err, "appointment_id", appointmentID)
		return nil, err
	}
	return addOns, nil
}

// ListIDsForSync returns every appointment id a bulk sync should consider.
// Eligibility filtering happens in the sync engine where settings live.
func (r *appointmentRepository) ListIDsForSync(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT id FROM appointments ORDER BY start_time`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		logger.Error("AppointmentRepository:ListIDsForSync:Error", "error", err)
		return nil, err
	}
	return ids, nil
}

func (r *appointmentRepository) FindByCustomerEmailAndDay(ctx context.Context, email string, dayStart, dayEnd time.Time) ([]entity.Detail, error) {
	var details []entity.Detail
	query := `SELECT ` + detailColumns + detailJoins + `
		WHERE LOWER(c.email) = LOWER($1)
		AND a.start_time >= $2 AND a.start_time < $3
		ORDER BY a.start_time
	`
	if err := r.db.SelectContext(ctx, &details, query, email, dayStart, dayEnd); err != nil {
		logger.Error("AppointmentRepository:FindByCustomerEmailAndDay:Error", "error", err, "email", email)
		return nil, err
	}
	return details, nil
}

// EnsureCustomer finds a customer by email (case-insensitive) or creates one.
// Name and phone on an existing row are left alone; the import never edits
// records it did not create.
func (r *appointmentRepository) EnsureCustomer(ctx context.Context, name, email, phone string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `SELECT id FROM customers WHERE LOWER(email) = LOWER($1)`
	err := r.db.GetContext(ctx, &id, query, email)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		logger.Error("AppointmentRepository:EnsureCustomer:Lookup:Error", "error", err, "email", email)
		return uuid.Nil, err
	}

	insert := `INSERT INTO customers (name, email, phone) VALUES ($1, $2, $3) RETURNING id`
	if err := r.db.QueryRowContext(ctx, insert, name, email, phone).Scan(&id); err != nil {
		logger.Error("AppointmentRepository:EnsureCustomer:Insert:Error", "error", err, "email", email)
		return uuid.Nil, err
	}
	return id, nil
}

// EnsurePet finds the customer's pet by name (case-insensitive) or creates it.
func (r *appointmentRepository) EnsurePet(ctx context.Context, customerID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `SELECT id FROM pets WHERE customer_id = $1 AND LOWER(name) = LOWER($2)`
	err := r.db.GetContext(ctx, &id, query, customerID, name)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		logger.Error("AppointmentRepository:EnsurePet:Lookup:Error", "error", err, "customer_id", customerID)
		return uuid.Nil, err
	}

	insert := `INSERT INTO pets (customer_id, name) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, insert, customerID, name).Scan(&id); err != nil {
		logger.Error("AppointmentRepository:EnsurePet:Insert:Error", "error", err, "customer_id", customerID)
		return uuid.Nil, err
	}
	return id, nil
}

func (r *appointmentRepository) CreateImported(ctx context.Context, appt *entity.Appointment, batchID string) (*entity.Appointment, error) {
	query := `
		INSERT INTO appointments (customer_id, pet_id, service_id, start_time, status, notes, import_batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		appt.CustomerID, appt.PetID, appt.ServiceID, appt.StartTime, appt.Status, appt.Notes, batchID,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		logger.Error("AppointmentRepository:CreateImported:Error", "error", err, "batch_id", batchID)
		return nil, err
	}
	appt.ImportBatchID = &batchID
	return appt, nil
}

func (r *appointmentRepository) LinkAddOn(ctx context.Context, appointmentID, addonID uuid.UUID) error {
	query := `
		INSERT INTO appointment_addons (appointment_id, addon_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if err := r.db.ExecContext(ctx, query, appointmentID, addonID); err != nil {
		logger.Error("AppointmentRepository:LinkAddOn:Error", "error", err, "appointment_id", appointmentID)
		return err
	}
	return nil
}

func (r *appointmentRepository) ListByImportBatch(ctx context.Context, batchID string) ([]entity.Appointment, error) {
	var appts []entity.Appointment
	query := `
		SELECT id, created_at, updated_at, customer_id, pet_id, service_id, start_time, status, notes, import_batch_id
		FROM appointments
		WHERE import_batch_id = $1
		ORDER BY start_time
	`
	if err := r.db.SelectContext(ctx, &appts, query, batchID); err != nil {
		logger.Error("AppointmentRepository:ListByImportBatch:Error", "error", err, "batch_id", batchID)
		return nil, err
	}
	return appts, nil
}

func (r *appointmentRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM appointments WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("AppointmentRepository:DeleteByID:Error", "error", err, "appointment_id", id)
		return err
	}
	return nil
}
