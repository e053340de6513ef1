package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFiles are loaded from the project root, in order.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads KEY=VALUE files from root into the process environment.
// Variables already set are not overwritten. Missing files are skipped.
func LoadEnvFiles(root string) ([]string, error) {
	var loaded []string
	for _, name := range EnvFiles {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, invalid("env file", p, err)
		}
		slog.Debug("Loaded environment file", "path", p)
		loaded = append(loaded, p)
	}
	return loaded, nil
}
