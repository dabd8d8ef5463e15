package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"whatsapp-hubspot-bridge/internal/hubspot"
	"whatsapp-hubspot-bridge/internal/whatsapp"
)

// Transport is the slice of the WhatsApp client the control surface needs.
type Transport interface {
	State() whatsapp.State
	PairingCode() string
}

// Server is the local HTTP control surface: it drives the HubSpot OAuth
// flow and reports pairing and connection status.
type Server struct {
	hs           *hubspot.Client
	onAuthorized func()

	mu        sync.Mutex
	transport Transport
}

// NewServer creates the control surface. onAuthorized runs once after a
// successful authorization-code exchange, typically to start the WhatsApp
// listener.
func NewServer(hsClient *hubspot.Client, onAuthorized func()) (*Server, error) {
	if hsClient == nil {
		return nil, fmt.Errorf("HubSpot client cannot be nil")
	}
	return &Server{hs: hsClient, onAuthorized: onAuthorized}, nil
}

// SetTransport attaches the WhatsApp client once it exists.
func (s *Server) SetTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Server) getTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Router builds the control surface routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	chain := alice.New(s.logRequest, s.recoverPanic)

	r.Handle("/", chain.ThenFunc(s.Authorize())).Methods(http.MethodGet)
	r.Handle("/oauth-callback", chain.ThenFunc(s.OAuthCallback())).Methods(http.MethodGet)
	r.Handle("/reset", chain.ThenFunc(s.Reset())).Methods(http.MethodGet)
	r.Handle("/qr", chain.ThenFunc(s.PairingQR())).Methods(http.MethodGet)
	r.Handle("/status", chain.ThenFunc(s.Status())).Methods(http.MethodGet)
	return r
}

// Authorize redirects the browser to the HubSpot authorization page.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.hs.AuthorizeURL(), http.StatusFound)
	}
}

// OAuthCallback consumes the redirect from HubSpot and exchanges the code.
func (s *Server) OAuthCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "No code provided", http.StatusBadRequest)
			return
		}

		if _, err := s.hs.ExchangeAuthorizationCode(r.Context(), code); err != nil {
			log.Error().Err(err).Msg("Authorization code exchange failed")
			http.Error(w, "Failed to get access token: "+err.Error(), http.StatusBadGateway)
			return
		}

		fmt.Fprintln(w, "Authorization successful! WhatsApp listener starting...")
		if s.onAuthorized != nil {
			go s.onAuthorized()
		}
	}
}

// Reset deletes the stored HubSpot credential.
func (s *Server) Reset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.hs.Tokens().Reset(); err != nil {
			log.Error().Err(err).Msg("Failed to reset HubSpot connection")
			http.Error(w, "Failed to reset: "+err.Error(), http.StatusInternalServerError)
			return
		}
		log.Info().Msg("HubSpot connection reset")
		fmt.Fprintln(w, "HubSpot connection reset! Visit / to reconnect.")
	}
}

// PairingQR serves the current pairing code as a PNG, or 404 when the
// session is already paired.
func (s *Server) PairingQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transport := s.getTransport()
		if transport == nil || transport.PairingCode() == "" {
			http.Error(w, "No pairing code available", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(transport.PairingCode(), qrcode.Medium, 256)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode pairing QR")
			http.Error(w, "Failed to render QR", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}

// Status reports connection and token state.
func (s *Server) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		whatsappState := string(whatsapp.StateDisconnected)
		pairing := false
		if transport := s.getTransport(); transport != nil {
			whatsappState = string(transport.State())
			pairing = transport.PairingCode() != ""
		}

		hubspotState := "ready"
		if s.hs.Tokens().AccessToken() == "" {
			hubspotState = "unconfigured"
		}

		s.respondWithJSON(w, http.StatusOK, map[string]any{
			"whatsapp":        whatsappState,
			"pairing_pending": pairing,
			"hubspot":         hubspotState,
		})
	}
}

func (s *Server) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("Control request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Panic in control handler")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
