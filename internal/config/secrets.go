package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets are read from the environment only, never from the config file.
type Secrets struct {
	JWTSecret     string `envconfig:"JWT_SECRET"`
	AdminToken    string `envconfig:"ADMIN_TOKEN"`
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
}

// LoadSecrets reads Secrets from the environment. If envFile is non-empty and
// exists it is loaded first; variables already set in the process win.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("env: %w", err)
	}
	return s, nil
}
