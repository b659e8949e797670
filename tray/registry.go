package tray

import (
	"runtime"
	"sync"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

// BackendFactory builds the per-icon platform implementation: the resource
// adapter that owns the native tray slot and the event source that pumps
// native input. On every supported platform both views are one struct
// sharing native state. The name is the icon's stable key; what a platform
// does with it (window class, bus item id) is backend-specific.
type BackendFactory func(name string) (commontray.ResourceAdapter, commontray.EventSource, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]BackendFactory{}

	// hostOS is detected once at startup. It is a variable so tests can
	// point the registry at a synthetic platform.
	hostOS = runtime.GOOS
)

// RegisterBackend makes a backend available for the given GOOS. The platform
// files in this package register the built-in backends from init; new
// platforms are added here without touching the icon lifecycle.
// Registering a GOOS twice overwrites the previous entry.
func RegisterBackend(goos string, f BackendFactory) {
	backendsMu.Lock()
	backends[goos] = f
	backendsMu.Unlock()
}

func resolveBackend() (BackendFactory, error) {
	backendsMu.RLock()
	f, ok := backends[hostOS]
	backendsMu.RUnlock()
	if !ok {
		return nil, commontray.ErrUnsupportedPlatform
	}
	return f, nil
}
