package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/mapper"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimezone = "America/Los_Angeles"

func newWebhookService(h *harness) *WebhookService {
	quotaSvc := NewQuotaService(h.quota, constants.QuotaDailyLimit, constants.QuotaHighWaterPercent)
	return NewWebhookService(h.connRepo, h.apptRepo, h.mappings, h.tokenSvc, h.client,
		h.syncSvc, quotaSvc, testTimezone)
}

func (h *harness) registerChannel(t *testing.T, channelID, token string) {
	t.Helper()
	resourceID := "res-" + channelID
	expires := time.Now().Add(7 * 24 * time.Hour)
	require.NoError(t, h.connRepo.UpdateChannel(context.Background(), h.conn.ID,
		&channelID, &token, &resourceID, &expires))
}

// syncedAppointment pushes one appointment so a mapping and a remote event
// exist, then returns the detail and its mapping.
func (h *harness) syncedAppointment(t *testing.T) (*apptEntity.Detail, *entity.EventMapping) {
	t.Helper()
	appt := h.addAppointment(apptEntity.StatusScheduled, time.Now().Add(48*time.Hour))
	require.Nil(t, h.syncSvc.SyncAppointment(context.Background(), h.adminID, appt.ID, entity.OpCreate, false))
	mapping, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	return appt, mapping
}

func TestValidateNotification(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")

	conn, ok := svc.ValidateNotification(context.Background(), "chan-1", "secret-token")
	require.True(t, ok)
	assert.Equal(t, h.conn.ID, conn.ID)

	_, ok = svc.ValidateNotification(context.Background(), "chan-1", "wrong-token")
	assert.False(t, ok)

	_, ok = svc.ValidateNotification(context.Background(), "unknown-chan", "secret-token")
	assert.False(t, ok)

	_, ok = svc.ValidateNotification(context.Background(), "", "secret-token")
	assert.False(t, ok)
}

func TestProcessRecreatesExternallyDeletedEvent(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	_, mapping := h.syncedAppointment(t)

	// The admin deleted our event in the Google UI.
	delete(h.client.events, mapping.GoogleEventID)
	h.client.listResult = []provider.Event{{
		ID:     mapping.GoogleEventID,
		Status: "cancelled",
	}}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	after, err := h.mappings.GetByAppointmentID(context.Background(), mapping.AppointmentID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.NotEqual(t, mapping.GoogleEventID, after.GoogleEventID)
	assert.Equal(t, 2, h.client.insertCalls)
}

func TestProcessOverwritesRemoteEdit(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	_, mapping := h.syncedAppointment(t)

	edited := *h.client.events[mapping.GoogleEventID]
	edited.Summary = "Renamed by the admin"
	h.client.listResult = []provider.Event{edited}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	// Local state wins: our draft is pushed back over the edit.
	assert.Equal(t, 1, h.client.updateCalls)
	stored := h.client.events[mapping.GoogleEventID]
	assert.NotEqual(t, "Renamed by the admin", stored.Summary)
}

func TestProcessIgnoresEchoOfOwnPush(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	appt, mapping := h.syncedAppointment(t)

	draft := mapper.ToGoogleEvent(appt, testTimezone)
	h.client.listResult = []provider.Event{{
		ID:          mapping.GoogleEventID,
		Status:      "confirmed",
		Summary:     draft.Summary,
		Description: draft.Description,
		Start:       draft.Start,
		End:         draft.End,
		ColorID:     draft.ColorID,
	}}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))
	assert.Equal(t, 0, h.client.updateCalls)
	assert.Equal(t, 1, h.client.insertCalls) // only the initial push
}

func TestProcessMatchesTimesAsInstants(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	appt, mapping := h.syncedAppointment(t)

	// Same instants rendered in a different offset must not count as edits.
	draft := mapper.ToGoogleEvent(appt, testTimezone)
	start, err := time.Parse(time.RFC3339, draft.Start.DateTime)
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, draft.End.DateTime)
	require.NoError(t, err)
	h.client.listResult = []provider.Event{{
		ID:          mapping.GoogleEventID,
		Status:      "confirmed",
		Summary:     draft.Summary,
		Description: draft.Description,
		Start:       provider.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         provider.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
		ColorID:     draft.ColorID,
	}}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))
	assert.Equal(t, 0, h.client.updateCalls)
}

func TestProcessSkipsUnmappedEvents(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")

	h.client.listResult = []provider.Event{{
		ID:      "somebody-elses-event",
		Status:  "confirmed",
		Summary: "Dentist",
	}}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))
	assert.Equal(t, 0, h.client.insertCalls)
	assert.Equal(t, 0, h.client.updateCalls)
}

func TestProcessDropsMappingForCancelledLocalAppointment(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	appt, mapping := h.syncedAppointment(t)
	h.apptRepo.details[appt.ID].Status = apptEntity.StatusCancelled

	h.client.listResult = []provider.Event{{
		ID:     mapping.GoogleEventID,
		Status: "cancelled",
	}}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	after, err := h.mappings.GetByAppointmentID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Nil(t, after)
	assert.Equal(t, 1, h.client.insertCalls) // no recreation
}

func TestProcessAdvancesLastSyncedAt(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncedAt)
	assert.WithinDuration(t, time.Now(), *conn.LastSyncedAt, 5*time.Second)
}

func TestProcessDefersWhenThrottled(t *testing.T) {
	h := newHarness(t)
	h.registerChannel(t, "chan-1", "secret-token")
	quotaSvc := NewQuotaService(h.quota, 10, 90)
	svc := NewWebhookService(h.connRepo, h.apptRepo, h.mappings, h.tokenSvc, h.client,
		h.syncSvc, quotaSvc, testTimezone)
	for i := 0; i < 10; i++ {
		quotaSvc.RecordCall(context.Background())
	}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))
	assert.Equal(t, 0, h.client.listCalls)
}

func TestProcessSkipsPausedConnection(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	require.NoError(t, h.connRepo.SetPaused(context.Background(), h.conn.ID, "tripped"))

	require.NoError(t, svc.Process(context.Background(), "chan-1"))
	assert.Equal(t, 0, h.client.listCalls)
}

func TestProcessQueuesRetryWhenRecreateFails(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	appt, mapping := h.syncedAppointment(t)

	// The event was deleted in the Google UI and the recreate hits an
	// outage: the restore must land in the retry queue, not vanish.
	delete(h.client.events, mapping.GoogleEventID)
	h.client.listResult = []provider.Event{{
		ID:     mapping.GoogleEventID,
		Status: "cancelled",
	}}
	h.client.insertErr = &provider.APIError{StatusCode: 503, Body: "backend error"}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	item, err := h.retries.GetByAppointmentAndOp(context.Background(), appt.ID, entity.OpCreate)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 0, item.RetryCount)

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.Nil(t, conn.LastSyncedAt, "watermark must not advance past a dropped change")
	assert.Equal(t, 1, conn.ConsecutiveFailures)
}

func TestProcessHoldsWatermarkOnPermanentReconcileFailure(t *testing.T) {
	h := newHarness(t)
	svc := newWebhookService(h)
	h.registerChannel(t, "chan-1", "secret-token")
	_, mapping := h.syncedAppointment(t)

	delete(h.client.events, mapping.GoogleEventID)
	h.client.listResult = []provider.Event{{
		ID:     mapping.GoogleEventID,
		Status: "cancelled",
	}}
	h.client.insertErr = &provider.APIError{StatusCode: 400, Body: "invalid event"}

	require.NoError(t, svc.Process(context.Background(), "chan-1"))

	pending, err := h.retries.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.Nil(t, conn.LastSyncedAt)
}
