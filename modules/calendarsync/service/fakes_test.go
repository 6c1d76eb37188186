package service

import (
	"context"
	"sync"
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/entity"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// In-memory repository fakes shared by the service tests. All are safe for
// concurrent use because the token tests hammer them from multiple
// goroutines.

type fakeConnRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*entity.CalendarConnection
}

func newFakeConnRepo(conns ...*entity.CalendarConnection) *fakeConnRepo {
	r := &fakeConnRepo{conns: map[uuid.UUID]*entity.CalendarConnection{}}
	for _, c := range conns {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.conns[c.ID] = c
	}
	return r
}

func (r *fakeConnRepo) clone(c *entity.CalendarConnection) *entity.CalendarConnection {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeConnRepo) Create(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn.ID = uuid.New()
	conn.CreatedAt = time.Now()
	r.conns[conn.ID] = r.clone(conn)
	return r.clone(conn), nil
}

func (r *fakeConnRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clone(r.conns[id]), nil
}

func (r *fakeConnRepo) GetActiveByAdminID(ctx context.Context, adminID uuid.UUID) (*entity.CalendarConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.AdminID == adminID && c.IsActive {
			return r.clone(c), nil
		}
	}
	return nil, nil
}

func (r *fakeConnRepo) GetByChannelID(ctx context.Context, channelID string) (*entity.CalendarConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.ChannelID != nil && *c.ChannelID == channelID {
			return r.clone(c), nil
		}
	}
	return nil, nil
}

func (r *fakeConnRepo) ListActive(ctx context.Context) ([]entity.CalendarConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarConnection
	for _, c := range r.conns {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

func (r *fakeConnRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.TokenExpiresAt = expiresAt
	return nil
}

func (r *fakeConnRepo) UpdateChannel(ctx context.Context, id uuid.UUID, channelID, channelToken, resourceID *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.ChannelID = channelID
	c.ChannelToken = channelToken
	c.ChannelResourceID = resourceID
	c.ChannelExpiresAt = expiresAt
	return nil
}

func (r *fakeConnRepo) UpdateSettings(ctx context.Context, id uuid.UUID, autoSync bool, statuses []string, syncPast, syncCompleted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.AutoSyncEnabled = autoSync
	c.SyncStatuses = pq.StringArray(statuses)
	c.SyncPastAppointments = syncPast
	c.SyncCompleted = syncCompleted
	return nil
}

func (r *fakeConnRepo) SetInactive(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id].IsActive = false
	return nil
}

func (r *fakeConnRepo) SetLastSyncedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id].LastSyncedAt = &at
	return nil
}

func (r *fakeConnRepo) IncrementFailures(ctx context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.ConsecutiveFailures++
	return c.ConsecutiveFailures, nil
}

func (r *fakeConnRepo) ResetFailures(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id].ConsecutiveFailures = 0
	return nil
}

func (r *fakeConnRepo) SetPaused(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	now := time.Now()
	c.Paused = true
	c.PauseReason = &reason
	c.PausedAt = &now
	return nil
}

func (r *fakeConnRepo) ClearPaused(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	c.Paused = false
	c.PauseReason = nil
	c.PausedAt = nil
	c.ConsecutiveFailures = 0
	return nil
}

type fakeApptRepo struct {
	mu      sync.Mutex
	details map[uuid.UUID]*apptEntity.Detail
}

func newFakeApptRepo(details ...*apptEntity.Detail) *fakeApptRepo {
	r := &fakeApptRepo{details: map[uuid.UUID]*apptEntity.Detail{}}
	for _, d := range details {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		r.details[d.ID] = d
	}
	return r
}

func (r *fakeApptRepo) GetByID(ctx context.Context, id uuid.UUID) (*apptEntity.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.details[id]
	if !ok {
		return nil, nil
	}
	appt := d.Appointment
	return &appt, nil
}

func (r *fakeApptRepo) GetDetail(ctx context.Context, id uuid.UUID) (*apptEntity.Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.details[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeApptRepo) ListIDsForSync(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id := range r.details {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeApptRepo) FindByCustomerEmailAndDay(ctx context.Context, email string, dayStart, dayEnd time.Time) ([]apptEntity.Detail, error) {
	return nil, nil
}

func (r *fakeApptRepo) EnsureCustomer(ctx context.Context, name, email, phone string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (r *fakeApptRepo) EnsurePet(ctx context.Context, customerID uuid.UUID, name string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (r *fakeApptRepo) CreateImported(ctx context.Context, appt *apptEntity.Appointment, batchID string) (*apptEntity.Appointment, error) {
	appt.ID = uuid.New()
	appt.ImportBatchID = &batchID
	return appt, nil
}

func (r *fakeApptRepo) LinkAddOn(ctx context.Context, appointmentID, addonID uuid.UUID) error {
	return nil
}

func (r *fakeApptRepo) ListByImportBatch(ctx context.Context, batchID string) ([]apptEntity.Appointment, error) {
	return nil, nil
}

func (r *fakeApptRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.details, id)
	return nil
}

type fakeMappingRepo struct {
	mu       sync.Mutex
	mappings map[uuid.UUID]*entity.EventMapping // by appointment id
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{mappings: map[uuid.UUID]*entity.EventMapping{}}
}

func (r *fakeMappingRepo) Upsert(ctx context.Context, mapping *entity.EventMapping) (*entity.EventMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.mappings[mapping.AppointmentID]; ok {
		mapping.ID = existing.ID
	} else {
		mapping.ID = uuid.New()
	}
	cp := *mapping
	r.mappings[mapping.AppointmentID] = &cp
	return mapping, nil
}

func (r *fakeMappingRepo) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*entity.EventMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[appointmentID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMappingRepo) GetByGoogleEventID(ctx context.Context, connectionID uuid.UUID, googleEventID string) (*entity.EventMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ConnectionID == connectionID && m.GoogleEventID == googleEventID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) UpdateSynced(ctx context.Context, id uuid.UUID, googleEventID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ID == id {
			m.GoogleEventID = googleEventID
			m.LastSyncedAt = at
			m.Status = entity.SyncStatusSynced
		}
	}
	return nil
}

func (r *fakeMappingRepo) SetStatus(ctx context.Context, id uuid.UUID, status entity.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ID == id {
			m.Status = status
		}
	}
	return nil
}

func (r *fakeMappingRepo) DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, appointmentID)
	return nil
}

func (r *fakeMappingRepo) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for apptID, m := range r.mappings {
		if m.ConnectionID == connectionID {
			delete(r.mappings, apptID)
		}
	}
	return nil
}

type fakeSyncLogRepo struct {
	mu      sync.Mutex
	entries []entity.SyncLogEntry
}

func (r *fakeSyncLogRepo) Append(ctx context.Context, entry *entity.SyncLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeSyncLogRepo) CountOutcomesSince(ctx context.Context, since time.Time) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var succ, fail int
	for _, e := range r.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		if e.Outcome == entity.OutcomeSuccess {
			succ++
		} else {
			fail++
		}
	}
	return succ, fail, nil
}

func (r *fakeSyncLogRepo) ListRecentByAppointment(ctx context.Context, appointmentID uuid.UUID, limit int) ([]entity.SyncLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.SyncLogEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].AppointmentID == appointmentID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *fakeSyncLogRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]entity.SyncLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.SyncLogEntry
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeSyncLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []entity.SyncLogEntry
	var deleted int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}

type fakeRetryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*entity.RetryQueueItem // by item id
}

func newFakeRetryRepo() *fakeRetryRepo {
	return &fakeRetryRepo{items: map[uuid.UUID]*entity.RetryQueueItem{}}
}

func (r *fakeRetryRepo) Upsert(ctx context.Context, item *entity.RetryQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.AppointmentID == item.AppointmentID && existing.Operation == item.Operation {
			existing.LastAttemptAt = item.LastAttemptAt
			existing.NextRetryAt = item.NextRetryAt
			existing.LastError = item.LastError
			item.ID = existing.ID
			item.RetryCount = existing.RetryCount
			return nil
		}
	}
	item.ID = uuid.New()
	item.CreatedAt = time.Now()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeRetryRepo) GetByAppointmentAndOp(ctx context.Context, appointmentID uuid.UUID, op entity.SyncOperation) (*entity.RetryQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.AppointmentID == appointmentID && item.Operation == op {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRetryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.RetryQueueItem
	for _, item := range r.items {
		if !item.NextRetryAt.After(now) && len(out) < limit {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeRetryRepo) CountPending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items), nil
}

func (r *fakeRetryRepo) Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := r.items[id]
	item.RetryCount = retryCount
	item.NextRetryAt = nextRetryAt
	item.LastError = &lastError
	item.LastAttemptAt = time.Now()
	return nil
}

func (r *fakeRetryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeRetryRepo) DeleteByAppointmentID(ctx context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.items {
		if item.AppointmentID == appointmentID {
			delete(r.items, id)
		}
	}
	return nil
}

func (r *fakeRetryRepo) DeleteByConnectionID(ctx context.Context, connectionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.items {
		if item.ConnectionID == connectionID {
			delete(r.items, id)
		}
	}
	return nil
}

type fakeQuotaRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{counts: map[string]int{}}
}

func (r *fakeQuotaRepo) Increment(ctx context.Context, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[day]++
	return r.counts[day], nil
}

func (r *fakeQuotaRepo) GetCount(ctx context.Context, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[day], nil
}

func (r *fakeQuotaRepo) DeleteBefore(ctx context.Context, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for d := range r.counts {
		if d < day {
			delete(r.counts, d)
		}
	}
	return nil
}

// fakeClient is a scriptable provider.Client. Err fields apply to the next
// matching call; counters record everything.
type fakeClient struct {
	mu sync.Mutex

	events map[string]*provider.Event // by event id
	nextID int

	insertErr  error
	updateErr  error
	deleteErr  error
	listErr    error
	refreshErr error

	insertCalls  int
	updateCalls  int
	deleteCalls  int
	listCalls    int
	refreshCalls int

	refreshDelay time.Duration
	refreshed    *provider.Token
	listResult   []provider.Event
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: map[string]*provider.Event{}}
}

func (c *fakeClient) InsertEvent(ctx context.Context, accessToken, calendarID string, draft *provider.EventDraft) (*provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertCalls++
	if c.insertErr != nil {
		return nil, c.insertErr
	}
	c.nextID++
	ev := &provider.Event{
		ID:          uuid.NewString(),
		Status:      "confirmed",
		Summary:     draft.Summary,
		Description: draft.Description,
		Start:       draft.Start,
		End:         draft.End,
		ColorID:     draft.ColorID,
	}
	c.events[ev.ID] = ev
	return ev, nil
}

func (c *fakeClient) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, draft *provider.EventDraft) (*provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateCalls++
	if c.updateErr != nil {
		return nil, c.updateErr
	}
	ev, ok := c.events[eventID]
	if !ok {
		return nil, &provider.APIError{StatusCode: 404}
	}
	ev.Summary = draft.Summary
	ev.Description = draft.Description
	ev.Start = draft.Start
	ev.End = draft.End
	ev.ColorID = draft.ColorID
	cp := *ev
	return &cp, nil
}

func (c *fakeClient) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCalls++
	if c.deleteErr != nil {
		return c.deleteErr
	}
	if _, ok := c.events[eventID]; !ok {
		return &provider.APIError{StatusCode: 404}
	}
	delete(c.events, eventID)
	return nil
}

func (c *fakeClient) GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[eventID]
	if !ok {
		return nil, &provider.APIError{StatusCode: 404}
	}
	cp := *ev
	return &cp, nil
}

func (c *fakeClient) ListEvents(ctx context.Context, accessToken, calendarID string, updatedMin time.Time) ([]provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.listResult, nil
}

func (c *fakeClient) Watch(ctx context.Context, accessToken, calendarID string, channel *provider.Channel, address string, expiry time.Time) (*provider.Channel, error) {
	return &provider.Channel{ID: channel.ID, ResourceID: "res-" + channel.ID, Token: channel.Token, Expiration: expiry}, nil
}

func (c *fakeClient) StopChannel(ctx context.Context, accessToken, channelID, resourceID string) error {
	return nil
}

func (c *fakeClient) ExchangeCode(ctx context.Context, code, redirectURL string) (*provider.Token, error) {
	return &provider.Token{AccessToken: "exchanged-access", RefreshToken: "exchanged-refresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c *fakeClient) GetUserEmail(ctx context.Context, accessToken string) (string, error) {
	return "owner@example.com", nil
}

func (c *fakeClient) RefreshToken(ctx context.Context, refreshToken string) (*provider.Token, error) {
	c.mu.Lock()
	c.refreshCalls++
	err := c.refreshErr
	delay := c.refreshDelay
	token := c.refreshed
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if token != nil {
		return token, nil
	}
	return &provider.Token{AccessToken: "refreshed-access", RefreshToken: refreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c *fakeClient) RevokeToken(ctx context.Context, token string) error {
	return nil
}
