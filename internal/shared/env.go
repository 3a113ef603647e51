package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads KEY=VALUE pairs from the .env file at path into the process environment.
//
// Variables already set in the environment win. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// EnvKey returns the environment variable name that overrides a setting, e.g. gemini/api_key -> GEMINI_API_KEY.
func EnvKey(group, key string) string {
	return strings.ToUpper(group + "_" + key)
}

// LookupSettingEnv returns the environment override for group/key, if any.
func LookupSettingEnv(group, key string) (string, bool) {
	return os.LookupEnv(EnvKey(group, key))
}
