package service

import (
	"context"
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"

	"github.com/google/uuid"
)

// stubAppointmentRepo satisfies the appointment repository interface with
// empty results so test fakes only override what they exercise.
type stubAppointmentRepo struct{}

func (stubAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*apptEntity.Appointment, error) {
	return nil, nil
}

func (stubAppointmentRepo) GetDetail(ctx context.Context, id uuid.UUID) (*apptEntity.Detail, error) {
	return nil, nil
}

func (stubAppointmentRepo) ListIDsForSync(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (stubAppointmentRepo) FindByCustomerEmailAndDay(ctx context.Context, email string, dayStart, dayEnd time.Time) ([]apptEntity.Detail, error) {
	return nil, nil
}

func (stubAppointmentRepo) EnsureCustomer(ctx context.Context, name, email, phone string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (stubAppointmentRepo) EnsurePet(ctx context.Context, customerID uuid.UUID, name string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (stubAppointmentRepo) CreateImported(ctx context.Context, appt *apptEntity.Appointment, batchID string) (*apptEntity.Appointment, error) {
	appt.ID = uuid.New()
	appt.ImportBatchID = &batchID
	return appt, nil
}

func (stubAppointmentRepo) LinkAddOn(ctx context.Context, appointmentID, addonID uuid.UUID) error {
	return nil
}

func (stubAppointmentRepo) ListByImportBatch(ctx context.Context, batchID string) ([]apptEntity.Appointment, error) {
	return nil, nil
}

func (stubAppointmentRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return nil
}
