package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// userConfigDir is a seam for tests.
var userConfigDir = os.UserConfigDir

// lastSessionFile returns the path where the CLI remembers the most recent
// session ID, under the user config directory.
func lastSessionFile() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deckhand", "last_session"), nil
}

// SaveLastSession records sessionID so a later run can --resume it.
func SaveLastSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	path, err := lastSessionFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sessionID+"\n"), 0o644)
}

// LoadLastSession returns the recorded session ID, or "" when none exists.
func LoadLastSession() (string, error) {
	path, err := lastSessionFile()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
