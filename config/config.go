package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	HubSpotClientID     string
	HubSpotClientSecret string
	HubSpotRedirectURI  string
	HubSpotBaseURL      string
	HubSpotAuthURL      string
	TokenFile           string

	Port        string
	CountryCode string

	SessionDBDialect string
	SessionDBDSN     string

	RabbitMQURL   string
	RabbitMQQueue string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, loading a .env file first
// when one is present. Environment variables take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		HubSpotClientID:     os.Getenv("HUBSPOT_CLIENT_ID"),
		HubSpotClientSecret: os.Getenv("HUBSPOT_CLIENT_SECRET"),
		HubSpotRedirectURI:  os.Getenv("HUBSPOT_REDIRECT_URI"),
		HubSpotBaseURL:      os.Getenv("HUBSPOT_BASE_URL"),
		HubSpotAuthURL:      os.Getenv("HUBSPOT_AUTH_URL"),
		TokenFile:           os.Getenv("HUBSPOT_TOKEN_FILE"),
		Port:                os.Getenv("PORT"),
		CountryCode:         os.Getenv("COUNTRY_CODE"),
		SessionDBDialect:    os.Getenv("SESSION_DB_DIALECT"),
		SessionDBDSN:        os.Getenv("SESSION_DB_DSN"),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:       os.Getenv("RABBITMQ_QUEUE"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		LogFormat:           os.Getenv("LOG_FORMAT"),
	}

	if cfg.HubSpotClientID == "" || cfg.HubSpotClientSecret == "" {
		return nil, fmt.Errorf("HUBSPOT_CLIENT_ID and HUBSPOT_CLIENT_SECRET must be set")
	}

	if cfg.HubSpotBaseURL == "" {
		cfg.HubSpotBaseURL = "https://api.hubapi.com"
	}
	if cfg.HubSpotAuthURL == "" {
		cfg.HubSpotAuthURL = "https://app.hubspot.com/oauth/authorize"
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = "hubspot_token.json"
	}
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.HubSpotRedirectURI == "" {
		cfg.HubSpotRedirectURI = "http://localhost:" + cfg.Port + "/oauth-callback"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "91"
	}
	if cfg.SessionDBDialect == "" {
		cfg.SessionDBDialect = "sqlite3"
	}
	if cfg.SessionDBDSN == "" {
		cfg.SessionDBDSN = "file:session.db?_foreign_keys=on"
	}
	if cfg.RabbitMQQueue == "" {
		cfg.RabbitMQQueue = "whatsapp_notes"
	}

	log.Info().Str("port", cfg.Port).Str("tokenFile", cfg.TokenFile).Msg("Configuration loaded")
	return cfg, nil
}
