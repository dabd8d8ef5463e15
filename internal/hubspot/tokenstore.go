package hubspot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no credential has been persisted yet;
// the interactive authorization flow must complete first.
var ErrNotConfigured = errors.New("hubspot: no stored credential")

// ErrNoRefreshToken is returned by a refresh attempt when the stored
// credential carries no refresh token.
var ErrNoRefreshToken = errors.New("hubspot: stored credential has no refresh token")

// Credential is the OAuth credential returned by the HubSpot token endpoint.
// Provider fields beyond the well-known ones are kept opaque in Extra and
// survive persistence and refresh merges untouched.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Extra        map[string]json.RawMessage
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Credential{Extra: map[string]json.RawMessage{}}
	for key, raw := range fields {
		switch key {
		case "access_token":
			if err := json.Unmarshal(raw, &c.AccessToken); err != nil {
				return fmt.Errorf("invalid access_token: %w", err)
			}
		case "refresh_token":
			if err := json.Unmarshal(raw, &c.RefreshToken); err != nil {
				return fmt.Errorf("invalid refresh_token: %w", err)
			}
		case "expires_in":
			if err := json.Unmarshal(raw, &c.ExpiresIn); err != nil {
				return fmt.Errorf("invalid expires_in: %w", err)
			}
		default:
			c.Extra[key] = raw
		}
	}
	return nil
}

func (c Credential) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(c.Extra)+3)
	for key, raw := range c.Extra {
		fields[key] = raw
	}
	access, _ := json.Marshal(c.AccessToken)
	fields["access_token"] = access
	refresh, _ := json.Marshal(c.RefreshToken)
	fields["refresh_token"] = refresh
	if c.ExpiresIn != 0 {
		expires, _ := json.Marshal(c.ExpiresIn)
		fields["expires_in"] = expires
	}
	return json.Marshal(fields)
}

// merged returns a copy of c with the non-empty fields of update applied on
// top, preserving anything the update does not carry.
func (c *Credential) merged(update *Credential) *Credential {
	out := &Credential{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiresIn:    c.ExpiresIn,
		Extra:        map[string]json.RawMessage{},
	}
	for key, raw := range c.Extra {
		out.Extra[key] = raw
	}
	if update.AccessToken != "" {
		out.AccessToken = update.AccessToken
	}
	if update.RefreshToken != "" {
		out.RefreshToken = update.RefreshToken
	}
	if update.ExpiresIn != 0 {
		out.ExpiresIn = update.ExpiresIn
	}
	for key, raw := range update.Extra {
		out.Extra[key] = raw
	}
	return out
}

// TokenStore owns the credential lifecycle: a single JSON file is the
// durable source of truth, mirrored in memory for request signing. Every
// mutation overwrites the file wholesale.
type TokenStore struct {
	path string

	mu   sync.Mutex
	cred *Credential
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the persisted credential. ErrNotConfigured means the
// authorization flow has not completed yet.
func (s *TokenStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotConfigured
	}
	if err != nil {
		return fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	s.cred = &cred
	return nil
}

// AccessToken returns the current access token, or "" when unconfigured.
func (s *TokenStore) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

// RefreshToken returns the current refresh token, or "" when absent.
func (s *TokenStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.RefreshToken
}

// Set replaces the credential entirely and persists it.
func (s *TokenStore) Set(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(cred); err != nil {
		return err
	}
	s.cred = cred
	return nil
}

// Merge applies a refresh response on top of the stored credential,
// preserving fields the refresh did not return, and persists the result.
func (s *TokenStore) Merge(update *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ErrNotConfigured
	}
	merged := s.cred.merged(update)
	if err := s.persist(merged); err != nil {
		return err
	}
	s.cred = merged
	return nil
}

// Reset deletes the durable record and clears the in-memory token. CRM
// calls fail until a fresh authorization completes.
func (s *TokenStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file %s: %w", s.path, err)
	}
	log.Info().Str("path", s.path).Msg("HubSpot token file deleted")
	return nil
}

func (s *TokenStore) persist(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", s.path, err)
	}
	return nil
}
