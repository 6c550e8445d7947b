package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; values already in the environment win.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads .env/.env.local so ${VAR} references in the YAML resolve.
// Missing files are not an error.
func loadEnvFiles() {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment variables", slog.String("path", path))
		}
	}
}
