package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	WAPhoneNumberID string
	WAAccessToken   string
	WAVerifyToken   string
	WAAppSecret     string

	OpenAIAPIKey string
	OpenAIModel  string

	ElevenLabsAPIKey string

	Port     string
	DataDir  string
	LogLevel string
}

func Load() (*Config, error) {
	// .env is optional — env vars may already be set (e.g. in production)
	_ = godotenv.Load()

	cfg := &Config{
		WAPhoneNumberID:  os.Getenv("WA_PHONE_NUMBER_ID"),
		WAAccessToken:    os.Getenv("WA_ACCESS_TOKEN"),
		WAVerifyToken:    os.Getenv("WA_VERIFY_TOKEN"),
		WAAppSecret:      os.Getenv("WA_APP_SECRET"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		Port:             os.Getenv("PORT"),
		DataDir:          os.Getenv("DATA_DIR"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4.1"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.WAVerifyToken == "" {
		token, err := randomHex(16)
		if err != nil {
			return nil, fmt.Errorf("generating verify token: %w", err)
		}
		cfg.WAVerifyToken = token
	}

	for _, req := range []struct {
		name, val string
	}{
		{"WA_PHONE_NUMBER_ID", cfg.WAPhoneNumberID},
		{"WA_ACCESS_TOKEN", cfg.WAAccessToken},
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("required env var %s is not set", req.name)
		}
	}

	return cfg, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
