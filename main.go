package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-hubspot-bridge/config"
	"whatsapp-hubspot-bridge/internal/handlers"
	"whatsapp-hubspot-bridge/internal/hubspot"
	"whatsapp-hubspot-bridge/internal/queue"
	"whatsapp-hubspot-bridge/internal/services"
	"whatsapp-hubspot-bridge/internal/whatsapp"
	"whatsapp-hubspot-bridge/pkg/logger"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	tokens := hubspot.NewTokenStore(cfg.TokenFile)
	hasToken := true
	if err := tokens.Load(); err != nil {
		if !errors.Is(err, hubspot.ErrNotConfigured) {
			log.Fatal().Err(err).Msg("Failed to load HubSpot credential")
		}
		hasToken = false
	}

	hsClient, err := hubspot.NewClient(cfg.HubSpotBaseURL, hubspot.OAuthConfig{
		ClientID:     cfg.HubSpotClientID,
		ClientSecret: cfg.HubSpotClientSecret,
		RedirectURI:  cfg.HubSpotRedirectURI,
		AuthBaseURL:  cfg.HubSpotAuthURL,
	}, tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize HubSpot client")
	}

	resolver, err := services.NewContactResolver(hsClient, cfg.CountryCode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize contact resolver")
	}
	writer, err := services.NewNoteWriter(hsClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize note writer")
	}
	publisher := queue.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	pipeline, err := services.NewMessagePipeline(resolver, writer, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize message pipeline")
	}

	var (
		waOnce   sync.Once
		waMu     sync.Mutex
		waClient *whatsapp.Client
	)

	var controlServer *handlers.Server

	startWhatsApp := func() {
		waOnce.Do(func() {
			client, err := whatsapp.NewClient(cfg.SessionDBDialect, cfg.SessionDBDSN, pipeline.HandleMessage)
			if err != nil {
				log.Error().Err(err).Msg("Failed to initialize WhatsApp client")
				return
			}
			waMu.Lock()
			waClient = client
			waMu.Unlock()
			controlServer.SetTransport(client)

			if err := client.Connect(); err != nil {
				log.Error().Err(err).Msg("Failed to connect to WhatsApp")
			}
		})
	}

	controlServer, err = handlers.NewServer(hsClient, startWhatsApp)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize control server")
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: controlServer.Router(),
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Control server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Control server failed")
		}
	}()

	if hasToken {
		log.Info().Msg("Using saved HubSpot token")
		selfTest(hsClient)
		startWhatsApp()
	} else {
		log.Info().Msgf("No HubSpot token found. Visit http://localhost:%s to start the OAuth flow", cfg.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	waMu.Lock()
	if waClient != nil {
		waClient.Disconnect()
	}
	waMu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Control server shutdown failed")
	}
}

// selfTest verifies CRM connectivity with the saved token by listing a page
// of contacts.
func selfTest(hsClient *hubspot.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := hsClient.ListContacts(ctx, 10)
	if err != nil {
		log.Error().Err(err).Msg("HubSpot connectivity test failed")
		return
	}
	log.Info().Int("contacts", len(result.Results)).Msg("HubSpot connectivity test successful")
}
