package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// OAuthConfig carries the app credentials for the HubSpot OAuth flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthBaseURL  string
}

// Client talks to the HubSpot CRM API. Every outbound call is signed with
// the stored access token and transparently retried once after a token
// refresh when the API answers 401.
type Client struct {
	http   *resty.Client
	tokens *TokenStore
	oauth  OAuthConfig

	refreshMu sync.Mutex
}

// NewClient creates a new HubSpot client.
func NewClient(baseURL string, oauth OAuthConfig, tokens *TokenStore) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("HubSpot baseURL cannot be empty")
	}
	if oauth.ClientID == "" || oauth.ClientSecret == "" {
		return nil, fmt.Errorf("HubSpot OAuth client credentials cannot be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store cannot be nil")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	log.Info().Str("baseURL", baseURL).Msg("HubSpot client configured")

	return &Client{
		http:   httpClient,
		tokens: tokens,
		oauth:  oauth,
	}, nil
}

// Tokens exposes the client's token store.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// call executes one authenticated CRM request. On a 401 it refreshes the
// token and replays the request exactly once; a second 401 is returned to
// the caller unchanged.
func (c *Client) call(ctx context.Context, send func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	token := c.tokens.AccessToken()
	resp, err := send(c.http.R().SetContext(ctx).SetAuthToken(token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		return resp, nil
	}

	log.Warn().Msg("HubSpot token expired, refreshing")
	if err := c.refreshIfStale(ctx, token); err != nil {
		log.Error().Err(err).Msg("Failed to refresh HubSpot token")
		return resp, nil
	}
	return send(c.http.R().SetContext(ctx).SetAuthToken(c.tokens.AccessToken()))
}

// SearchContactsByPhone runs an exact-match search on the phone property.
func (c *Client) SearchContactsByPhone(ctx context.Context, phone string) (*ContactSearchResponse, error) {
	body := ContactSearchRequest{
		FilterGroups: []FilterGroup{{
			Filters: []Filter{{PropertyName: "phone", Operator: "EQ", Value: phone}},
		}},
		Properties: searchProperties,
	}

	var result ContactSearchResponse
	resp, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&result).Post("/crm/v3/objects/contacts/search")
	})
	if err != nil {
		return nil, fmt.Errorf("HubSpot contact search request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HubSpot contact search error: status %s, body: %s", resp.Status(), resp.String())
	}
	return &result, nil
}

// CreateNote creates a timestamped note associated with a contact.
func (c *Client) CreateNote(ctx context.Context, contactID, body string, timestamp time.Time) (*Note, error) {
	payload := NoteRequest{
		Properties: NoteProperties{
			Body:      body,
			Timestamp: timestamp.UTC().Format(time.RFC3339),
		},
		Associations: []Association{{
			To: AssociationTarget{ID: contactID},
			Types: []AssociationType{{
				AssociationCategory: "HUBSPOT_DEFINED",
				AssociationTypeID:   noteToContactAssociationTypeID,
			}},
		}},
	}

	var note Note
	resp, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(payload).SetResult(&note).Post("/crm/v3/objects/notes")
	})
	if err != nil {
		return nil, fmt.Errorf("HubSpot note creation request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HubSpot note creation error: status %s, body: %s", resp.Status(), resp.String())
	}

	log.Info().Str("noteID", note.ID).Str("contactID", contactID).Msg("Note created in HubSpot")
	return &note, nil
}

// ListContacts fetches a page of contacts. Used only as a connectivity
// self-test after startup with a saved token.
func (c *Client) ListContacts(ctx context.Context, limit int) (*ContactListResponse, error) {
	var result ContactListResponse
	resp, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetQueryParam("properties", strings.Join(searchProperties, ",")).
			SetResult(&result).
			Get("/crm/v3/objects/contacts")
	})
	if err != nil {
		return nil, fmt.Errorf("HubSpot contact listing request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HubSpot contact listing error: status %s, body: %s", resp.Status(), resp.String())
	}
	return &result, nil
}
