package hubspot

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// oauthScopes are the HubSpot scopes requested during authorization.
const oauthScopes = "crm.objects.contacts.read crm.objects.contacts.write crm.objects.custom.write crm.schemas.contacts.read"

const tokenEndpoint = "/oauth/v1/token"

// AuthorizeURL builds the browser-facing HubSpot authorization URL.
func (c *Client) AuthorizeURL() string {
	params := url.Values{
		"client_id":    {c.oauth.ClientID},
		"redirect_uri": {c.oauth.RedirectURI},
		"scope":        {oauthScopes},
	}
	return c.oauth.AuthBaseURL + "?" + params.Encode()
}

// ExchangeAuthorizationCode trades an OAuth code for a credential, persists
// it, and makes it the active token.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (*Credential, error) {
	cred, err := c.tokenRequest(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.oauth.ClientID,
		"client_secret": c.oauth.ClientSecret,
		"redirect_uri":  c.oauth.RedirectURI,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Set(cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}
	log.Info().Msg("HubSpot access and refresh token saved")
	return cred, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// merges the response into the persisted credential. It fails fast, without
// a network call, when no refresh token is stored. On failure the stale
// token is left in place.
func (c *Client) Refresh(ctx context.Context) (*Credential, error) {
	return c.refresh(ctx)
}

// refreshIfStale refreshes the token unless another caller already replaced
// staleToken, in which case the stored token is reused as-is. This collapses
// duplicate refreshes triggered by near-simultaneous 401s.
func (c *Client) refreshIfStale(ctx context.Context, staleToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.tokens.AccessToken(); current != "" && current != staleToken {
		log.Debug().Msg("Token already refreshed by a concurrent call")
		return nil
	}
	_, err := c.refreshLocked(ctx)
	return err
}

func (c *Client) refresh(ctx context.Context) (*Credential, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) (*Credential, error) {
	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	cred, err := c.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.oauth.ClientID,
		"client_secret": c.oauth.ClientSecret,
		"redirect_uri":  c.oauth.RedirectURI,
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Merge(cred); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}
	log.Info().Msg("Refreshed HubSpot token")
	return cred, nil
}

// tokenRequest posts a form-encoded grant to the token endpoint and expects
// a JSON credential carrying an access token back.
func (c *Client) tokenRequest(ctx context.Context, form map[string]string) (*Credential, error) {
	var cred Credential
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(form).
		SetResult(&cred).
		Post(tokenEndpoint)
	if err != nil {
		return nil, fmt.Errorf("HubSpot token request failed: %w", err)
	}
	if resp.IsError() || cred.AccessToken == "" {
		return nil, fmt.Errorf("HubSpot token endpoint error: status %s, body: %s", resp.Status(), resp.String())
	}
	return &cred, nil
}
