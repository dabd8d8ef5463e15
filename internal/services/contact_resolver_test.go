package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"whatsapp-hubspot-bridge/internal/hubspot"
)

func TestPhoneFormats(t *testing.T) {
	got := PhoneFormats("+91 98765-43210", "91")
	// Order: raw, stripped, +stripped, country-code substitution,
	// stripped minus leading two digits, +CC re-prefixed. Duplicates
	// collapse onto their first occurrence.
	want := []string{
		"+91 98765-43210",
		"919876543210",
		"+919876543210",
		"9876543210",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PhoneFormats = %v, want %v", got, want)
	}
}

func TestPhoneFormatsWithoutCountryPrefix(t *testing.T) {
	got := PhoneFormats("5551234", "91")
	want := []string{
		"5551234",
		"+5551234",
		"51234",
		"+9151234",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PhoneFormats = %v, want %v", got, want)
	}
}

// trackingServer is a mock CRM that records which phone values were
// searched and matches only the configured one.
type trackingServer struct {
	mu       sync.Mutex
	searched []string
	matchOn  string
}

func (ts *trackingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/objects/contacts/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}
		var req hubspot.ContactSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode search request: %v", err)
		}
		value := req.FilterGroups[0].Filters[0].Value

		ts.mu.Lock()
		ts.searched = append(ts.searched, value)
		ts.mu.Unlock()

		resp := hubspot.ContactSearchResponse{}
		if value == ts.matchOn {
			resp = hubspot.ContactSearchResponse{Total: 1, Results: []hubspot.Contact{{ID: "contact-7"}}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestResolver(t *testing.T, serverURL string) *ContactResolver {
	t.Helper()
	store := hubspot.NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.Set(&hubspot.Credential{AccessToken: "tok", RefreshToken: "ref"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	client, err := hubspot.NewClient(serverURL, hubspot.OAuthConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:3000/oauth-callback",
	}, store)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resolver, err := NewContactResolver(client, "91")
	if err != nil {
		t.Fatalf("NewContactResolver: %v", err)
	}
	return resolver
}

func TestFindContactByPhoneStopsAtFirstMatch(t *testing.T) {
	// Match only on the +-prefixed stripped format, which is probed third.
	ts := &trackingServer{matchOn: "+919876543210"}
	server := httptest.NewServer(ts.handler(t))
	defer server.Close()

	resolver := newTestResolver(t, server.URL)

	id, err := resolver.FindContactByPhone(context.Background(), "91 98765 43210")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if id != "contact-7" {
		t.Errorf("contact ID = %q, want contact-7", id)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	want := []string{"91 98765 43210", "919876543210", "+919876543210"}
	if !reflect.DeepEqual(ts.searched, want) {
		t.Errorf("searched = %v, want %v (stop at first match)", ts.searched, want)
	}
}

func TestFindContactByPhoneNoMatch(t *testing.T) {
	ts := &trackingServer{matchOn: "never"}
	server := httptest.NewServer(ts.handler(t))
	defer server.Close()

	resolver := newTestResolver(t, server.URL)

	id, err := resolver.FindContactByPhone(context.Background(), "911234567890")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if id != "" {
		t.Errorf("contact ID = %q, want empty", id)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.searched) != len(PhoneFormats("911234567890", "91")) {
		t.Errorf("searched %d formats, want all %d", len(ts.searched), len(PhoneFormats("911234567890", "91")))
	}
}
