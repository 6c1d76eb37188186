package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/crypto"
	"github.com/jonlee90/thepuppyday-sub014/core/errors"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	adminID  uuid.UUID
	conn     *entity.CalendarConnection
	connRepo *fakeConnRepo
	apptRepo *fakeApptRepo
	mappings *fakeMappingRepo
	logs     *fakeSyncLogRepo
	retries  *fakeRetryRepo
	quota    *fakeQuotaRepo
	client   *fakeClient
	vault    *crypto.Vault
	breaker  *Breaker
	tokenSvc *TokenService
	syncSvc  *SyncService
}

func vaultKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	vault, err := crypto.NewVault(vaultKey())
	require.NoError(t, err)
	encAccess, err := vault.Encrypt("access-token")
	require.NoError(t, err)
	encRefresh, err := vault.Encrypt("refresh-token")
	require.NoError(t, err)

	conn := &entity.CalendarConnection{
		AdminID:            uuid.New(),
		GoogleAccountEmail: "owner@example.com",
		CalendarID:         "primary",
		AccessToken:        encAccess,
		RefreshToken:       encRefresh,
		TokenExpiresAt:     time.Now().Add(time.Hour),
		IsActive:           true,
		AutoSyncEnabled:    true,
		SyncStatuses: pq.StringArray{
			string(apptEntity.StatusScheduled),
			string(apptEntity.StatusConfirmed),
			string(apptEntity.StatusCheckedIn),
		},
		SyncPastAppointments: true,
	}

	h := &harness{
		adminID:  conn.AdminID,
		connRepo: newFakeConnRepo(conn),
		apptRepo: newFakeApptRepo(),
		mappings: newFakeMappingRepo(),
		logs:     &fakeSyncLogRepo{},
		retries:  newFakeRetryRepo(),
		quota:    newFakeQuotaRepo(),
		client:   newFakeClient(),
		vault:    vault,
	}
	h.conn = conn
	h.breaker = NewBreaker(h.connRepo, nil)
	h.tokenSvc = NewTokenService(h.connRepo, vault, h.client, nil)
	quotaSvc := NewQuotaService(h.quota, constants.QuotaDailyLimit, constants.QuotaHighWaterPercent)
	h.syncSvc = NewSyncService(h.connRepo, h.apptRepo, h.mappings, h.logs, h.retries,
		h.tokenSvc, h.client, quotaSvc, h.breaker, "America/Los_Angeles")
	return h
}

func (h *harness) addAppointment(status apptEntity.AppointmentStatus, start time.Time) *apptEntity.Detail {
	detail := &apptEntity.Detail{
		Appointment: apptEntity.Appointment{
			Status:    status,
			StartTime: start,
			Notes:     "gentle with nails",
		},
		CustomerName:           "Sarah Chen",
		CustomerEmail:          "sarah@example.com",
		CustomerPhone:          "555-0142",
		PetName:                "Biscuit",
		ServiceName:            "Full Groom",
		ServiceDurationMinutes: 90,
	}
	detail.ID = uuid.New()
	h.apptRepo.details[detail.ID] = detail
	return detail
}

func TestSyncAppointmentCreatesEventAndMapping(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false)
	require.Nil(t, appErr)

	assert.Equal(t, 1, h.client.insertCalls)
	mapping, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, entity.SyncStatusSynced, mapping.Status)
	assert.NotEmpty(t, mapping.GoogleEventID)

	require.Len(t, h.logs.entries, 1)
	assert.Equal(t, entity.OutcomeSuccess, h.logs.entries[0].Outcome)
	assert.Equal(t, entity.OpCreate, h.logs.entries[0].Operation)
}

func TestRepeatedCreateConvergesOnSingleEvent(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))

	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))
	// A redelivered create must not produce a second event.
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	assert.Equal(t, 1, h.client.insertCalls)
	assert.Equal(t, 1, h.client.updateCalls)
	assert.Len(t, h.client.events, 1)
}

func TestUpdateRecreatesEventDeletedRemotely(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusConfirmed, time.Now().Add(48*time.Hour))
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	before, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	// Simulate the event vanishing on the Google side.
	delete(h.client.events, before.GoogleEventID)

	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpUpdate, false))

	after, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.GoogleEventID, after.GoogleEventID)
	assert.Equal(t, 2, h.client.insertCalls)
	assert.Len(t, h.client.events, 1)
}

func TestDeleteWithoutMappingIsNoop(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpDelete, false)
	require.Nil(t, appErr)
	assert.Equal(t, 0, h.client.deleteCalls)
}

func TestDeleteRemovesEventAndMapping(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpDelete, false))

	assert.Empty(t, h.client.events)
	mapping, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestDeleteToleratesAlreadyGoneEvent(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	mapping, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	delete(h.client.events, mapping.GoogleEventID)

	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpDelete, false))
	mapping, err = h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestTransientFailureQueuesRetry(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	h.client.insertErr = &provider.APIError{StatusCode: 503}

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrProviderUnavailable, appErr.Code)

	item, err := h.retries.GetByAppointmentAndOp(context.Background(), appt.ID, entity.OpCreate)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 0, item.RetryCount)
	assert.WithinDuration(t, time.Now().Add(constants.RetryBackoffSchedule[0]), item.NextRetryAt, 5*time.Second)

	require.Len(t, h.logs.entries, 1)
	assert.Equal(t, entity.OutcomeFailure, h.logs.entries[0].Outcome)
	require.NotNil(t, h.logs.entries[0].ErrorDetail)
}

func TestPermanentFailureDoesNotQueueRetry(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	h.client.insertErr = &provider.APIError{StatusCode: 400, Body: "invalid event"}

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInternalServer, appErr.Code)

	pending, err := h.retries.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSuccessClearsQueuedRetries(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.NoError(t, h.retries.Upsert(context.Background(), &entity.RetryQueueItem{
		AppointmentID: appt.ID,
		ConnectionID:  h.conn.ID,
		Operation:     entity.OpCreate,
		NextRetryAt:   time.Now(),
	}))

	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	pending, err := h.retries.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPausedConnectionBlocksAutoSyncButNotManual(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.NoError(t, h.connRepo.SetPaused(context.Background(), h.conn.ID, "tripped"))

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrSyncPaused, appErr.Code)
	assert.Equal(t, 0, h.client.insertCalls)

	// Manual sync bypasses the paused flag.
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, true))
	assert.Equal(t, 1, h.client.insertCalls)
}

func TestIneligibleAppointmentSkippedSilently(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusCancelled, time.Now().Add(48*time.Hour))

	appErr := h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false)
	require.Nil(t, appErr)
	assert.Equal(t, 0, h.client.insertCalls)
	assert.Empty(t, h.logs.entries)
}

func TestSyncWithoutConnectionFails(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))

	appErr := h.syncSvc.SyncAppointment(context.Background(), uuid.New(), appt.ID, entity.OpCreate, false)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrConnectionInactive, appErr.Code)
}

func TestStatusReportsConnectionHealth(t *testing.T) {
	h := newHarness(t)
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))

	report, appErr := h.syncSvc.Status(context.Background(), h.adminID)
	require.Nil(t, appErr)
	assert.True(t, report.Connected)
	assert.Equal(t, "owner@example.com", report.GoogleAccountEmail)
	assert.False(t, report.Paused)
	assert.Equal(t, 1, report.Successes24h)
	assert.Zero(t, report.Failures24h)
	assert.Zero(t, report.PendingRetries)
	require.NotNil(t, report.Quota)
	assert.Equal(t, 1, report.Quota.Count)
}

func TestStatusDisconnected(t *testing.T) {
	h := newHarness(t)
	report, appErr := h.syncSvc.Status(context.Background(), uuid.New())
	require.Nil(t, appErr)
	assert.False(t, report.Connected)
}

func TestUpdateSettingsRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)

	appErr := h.syncSvc.UpdateSettings(context.Background(), h.adminID, true, []string{"scheduled", "imaginary"}, false, false)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
}

func TestUpdateSettingsPersists(t *testing.T) {
	h := newHarness(t)

	require.Nil(t, h.syncSvc.UpdateSettings(context.Background(), h.adminID, false, []string{"confirmed"}, true, true))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.False(t, conn.AutoSyncEnabled)
	assert.Equal(t, pq.StringArray{"confirmed"}, conn.SyncStatuses)
	assert.True(t, conn.SyncPastAppointments)
	assert.True(t, conn.SyncCompleted)
}

func TestResumeClearsPause(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.connRepo.SetPaused(context.Background(), h.conn.ID, "tripped"))

	require.Nil(t, h.syncSvc.Resume(context.Background(), h.adminID))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.False(t, conn.Paused)
	assert.Nil(t, conn.PauseReason)
	assert.Zero(t, conn.ConsecutiveFailures)
}
