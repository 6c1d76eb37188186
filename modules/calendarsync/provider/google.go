package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/core/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const calendarAPIBase = "https://www.googleapis.com/calendar/v3"

// Client is the surface the sync engine needs from Google Calendar. Every
// call takes the bearer token explicitly; token lifecycle is the token
// service's concern.
type Client interface {
	InsertEvent(ctx context.Context, accessToken, calendarID string, draft *EventDraft) (*Event, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, draft *EventDraft) (*Event, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
	GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*Event, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, updatedMin time.Time) ([]Event, error)
	Watch(ctx context.Context, accessToken, calendarID string, channel *Channel, address string, expiry time.Time) (*Channel, error)
	StopChannel(ctx context.Context, accessToken, channelID, resourceID string) error
	ExchangeCode(ctx context.Context, code, redirectURL string) (*Token, error)
	GetUserEmail(ctx context.Context, accessToken string) (string, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	RevokeToken(ctx context.Context, token string) error
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
}

type googleClient struct {
	httpClient *http.Client
	oauth      OAuthConfig
}

func NewGoogleClient(oauth OAuthConfig) Client {
	return &googleClient{
		httpClient: &http.Client{Timeout: constants.ProviderCallTimeout},
		oauth:      oauth,
	}
}

func (c *googleClient) InsertEvent(ctx context.Context, accessToken, calendarID string, draft *EventDraft) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", calendarAPIBase, url.PathEscape(calendarID))
	var event Event
	if err := c.doJSON(ctx, http.MethodPost, endpoint, accessToken, draft, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *googleClient) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, draft *EventDraft) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", calendarAPIBase, url.PathEscape(calendarID), url.PathEscape(eventID))
	var event Event
	if err := c.doJSON(ctx, http.MethodPut, endpoint, accessToken, draft, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *googleClient) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", calendarAPIBase, url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.doJSON(ctx, http.MethodDelete, endpoint, accessToken, nil, nil)
}

func (c *googleClient) GetEvent(ctx context.Context, accessToken, calendarID, eventID string) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", calendarAPIBase, url.PathEscape(calendarID), url.PathEscape(eventID))
	var event Event
	if err := c.doJSON(ctx, http.MethodGet, endpoint, accessToken, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns events updated since updatedMin, including cancelled
// ones so deletions propagate.
func (c *googleClient) ListEvents(ctx context.Context, accessToken, calendarID string, updatedMin time.Time) ([]Event, error) {
	params := url.Values{}
	params.Add("singleEvents", "true")
	params.Add("showDeleted", "true")
	params.Add("maxResults", "250")
	if !updatedMin.IsZero() {
		params.Add("updatedMin", updatedMin.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", calendarAPIBase, url.PathEscape(calendarID), params.Encode())

	var result struct {
		Items []Event `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, accessToken, nil, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (c *googleClient) Watch(ctx context.Context, accessToken, calendarID string, channel *Channel, address string, expiry time.Time) (*Channel, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/watch", calendarAPIBase, url.PathEscape(calendarID))
	body := map[string]any{
		"id":         channel.ID,
		"type":       "web_hook",
		"address":    address,
		"token":      channel.Token,
		"expiration": expiry.UnixMilli(),
	}

	var result struct {
		ID         string `json:"id"`
		ResourceID string `json:"resourceId"`
		Expiration string `json:"expiration"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, accessToken, body, &result); err != nil {
		return nil, err
	}

	registered := &Channel{ID: result.ID, ResourceID: result.ResourceID, Token: channel.Token}
	if ms, err := strconv.ParseInt(result.Expiration, 10, 64); err == nil {
		registered.Expiration = time.UnixMilli(ms)
	} else {
		registered.Expiration = expiry
	}
	return registered, nil
}

func (c *googleClient) StopChannel(ctx context.Context, accessToken, channelID, resourceID string) error {
	body := map[string]string{"id": channelID, "resourceId": resourceID}
	return c.doJSON(ctx, http.MethodPost, "https://www.googleapis.com/calendar/v3/channels/stop", accessToken, body, nil)
}

// ExchangeCode redeems the authorization code from the OAuth callback.
func (c *googleClient) ExchangeCode(ctx context.Context, code, redirectURL string) (*Token, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		if rerr, ok := err.(*oauth2.RetrieveError); ok && rerr.Response != nil {
			return nil, newAPIError(rerr.Response.StatusCode, rerr.Body, nil)
		}
		return nil, err
	}
	return &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

// GetUserEmail resolves the account that granted access.
func (c *googleClient) GetUserEmail(ctx context.Context, accessToken string) (string, error) {
	var result struct {
		Email string `json:"email"`
	}
	err := c.doJSON(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", accessToken, nil, &result)
	if err != nil {
		return "", err
	}
	return result.Email, nil
}

// RefreshToken exchanges the refresh token via the oauth2 token source, the
// same way login refresh works.
func (c *googleClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := tokenSource.Token()
	if err != nil {
		if rerr, ok := err.(*oauth2.RetrieveError); ok && rerr.Response != nil {
			return nil, newAPIError(rerr.Response.StatusCode, rerr.Body, nil)
		}
		return nil, err
	}

	refreshed := &Token{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiresAt:    newToken.Expiry,
	}
	// Google only returns the refresh token on first grant; keep the old one.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	return refreshed, nil
}

func (c *googleClient) RevokeToken(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://oauth2.googleapis.com/revoke", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body, nil)
	}
	return nil
}

// doJSON performs one authenticated request. Non-2xx responses come back as
// *APIError so callers can classify without re-reading the body.
func (c *googleClient) doJSON(ctx context.Context, method, endpoint, accessToken string, reqBody, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		var retryAfter *time.Duration
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, parseErr := strconv.Atoi(h); parseErr == nil {
				d := time.Duration(secs) * time.Second
				retryAfter = &d
			}
		}
		logger.Warn("GoogleClient:doJSON:APIError", "method", method, "status", resp.StatusCode)
		return newAPIError(resp.StatusCode, body, retryAfter)
	}

	if respBody == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
