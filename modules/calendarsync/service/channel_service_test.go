package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChannelService(h *harness) *ChannelService {
	quotaSvc := NewQuotaService(h.quota, constants.QuotaDailyLimit, constants.QuotaHighWaterPercent)
	return NewChannelService(h.connRepo, h.tokenSvc, h.client, quotaSvc,
		"https://groomer.example.com/api/calendar/webhook")
}

func TestChannelOpenPersistsRegistration(t *testing.T) {
	h := newHarness(t)
	svc := newChannelService(h)

	require.NoError(t, svc.Open(context.Background(), h.conn))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	require.NotNil(t, conn.ChannelID)
	require.NotNil(t, conn.ChannelToken)
	require.NotNil(t, conn.ChannelResourceID)
	require.NotNil(t, conn.ChannelExpiresAt)
	assert.Len(t, *conn.ChannelToken, 32)
	assert.WithinDuration(t, time.Now().Add(constants.WebhookChannelLifetime), *conn.ChannelExpiresAt, time.Minute)
}

func TestChannelCloseClearsRegistration(t *testing.T) {
	h := newHarness(t)
	svc := newChannelService(h)
	require.NoError(t, svc.Open(context.Background(), h.conn))
	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)

	svc.Close(context.Background(), conn)

	conn, err = h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.Nil(t, conn.ChannelID)
	assert.Nil(t, conn.ChannelToken)
	assert.Nil(t, conn.ChannelExpiresAt)
}

func TestRenewExpiringReplacesNearExpiryChannel(t *testing.T) {
	h := newHarness(t)
	svc := newChannelService(h)

	oldID := "old-channel"
	oldToken := "old-token"
	oldResource := "old-resource"
	soon := time.Now().Add(time.Hour) // inside the renewal window
	require.NoError(t, h.connRepo.UpdateChannel(context.Background(), h.conn.ID,
		&oldID, &oldToken, &oldResource, &soon))

	require.NoError(t, svc.RenewExpiring(context.Background()))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	require.NotNil(t, conn.ChannelID)
	assert.NotEqual(t, oldID, *conn.ChannelID)
	assert.True(t, conn.ChannelExpiresAt.After(time.Now().Add(constants.WebhookChannelRenewalWindow)))
}

func TestRenewExpiringLeavesHealthyChannelAlone(t *testing.T) {
	h := newHarness(t)
	svc := newChannelService(h)

	id := "healthy-channel"
	token := "token"
	resource := "resource"
	far := time.Now().Add(6 * 24 * time.Hour)
	require.NoError(t, h.connRepo.UpdateChannel(context.Background(), h.conn.ID,
		&id, &token, &resource, &far))

	require.NoError(t, svc.RenewExpiring(context.Background()))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.Equal(t, id, *conn.ChannelID)
}

func TestRenewExpiringHealsMissingChannel(t *testing.T) {
	h := newHarness(t)
	svc := newChannelService(h)

	// A connection whose channel never opened (e.g. the OAuth-time Open
	// failed) gets one on the next sweep.
	require.NoError(t, svc.RenewExpiring(context.Background()))

	conn, err := h.connRepo.GetByID(context.Background(), h.conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, conn.ChannelID)
}
