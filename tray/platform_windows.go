//go:build windows

package tray

import (
	"github.com/ReEnvision-AI/trayicon/tray/commontray"
	"github.com/ReEnvision-AI/trayicon/tray/wintray"
)

func init() {
	RegisterBackend("windows", func(name string) (commontray.ResourceAdapter, commontray.EventSource, error) {
		t := wintray.New(name)
		return t, t, nil
	})
}
