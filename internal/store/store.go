// Package store persists a stable tray icon identity in a JSON sidecar
// file, so platforms that key the tray slot by name see the same icon
// across application restarts.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

type Store struct {
	IconName string `json:"icon-name"`
}

var (
	lock  sync.Mutex
	store Store
	path  string
)

// IconName returns the persisted icon name, generating and saving a fresh
// uuid on first use.
func IconName(appName string) string {
	lock.Lock()
	defer lock.Unlock()
	if store.IconName == "" {
		initStore(appName)
	}
	return store.IconName
}

func initStore(appName string) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// No config dir means no persistence; a one-shot name still works.
		slog.Warn("no user config directory, icon name will not persist", "error", err)
		store.IconName = uuid.NewString()
		return
	}
	path = filepath.Join(configDir, appName, "store.json")

	storeFile, err := os.Open(path)
	if err == nil {
		defer storeFile.Close()
		if err = json.NewDecoder(storeFile).Decode(&store); err == nil && store.IconName != "" {
			slog.Debug("loaded existing store", "path", path, "icon_name", store.IconName)
			return
		}
		slog.Warn("failed to decode store file, creating a new one", "path", path, "error", err)
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("unexpected error opening store, creating a new one", "path", path, "error", err)
	}

	store.IconName = uuid.NewString()
	writeStore(path)
}

func writeStore(storeFilename string) {
	dir := filepath.Dir(storeFilename)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create dir", "path", dir, "error", err)
			return
		}
	}

	payload, err := json.Marshal(store)
	if err != nil {
		slog.Error("failed to marshal store", "error", err)
		return
	}
	fp, err := os.OpenFile(storeFilename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		slog.Error("failed to write store", "path", storeFilename, "error", err)
		return
	}
	defer fp.Close()
	if _, err := fp.Write(payload); err != nil {
		slog.Error("failed to write store payload", "path", storeFilename, "error", err)
		return
	}
	slog.Info("wrote store", "path", storeFilename)
}
