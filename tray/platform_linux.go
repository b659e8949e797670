//go:build linux

package tray

import (
	"github.com/ReEnvision-AI/trayicon/tray/commontray"
	"github.com/ReEnvision-AI/trayicon/tray/linuxtray"
)

func init() {
	RegisterBackend("linux", func(name string) (commontray.ResourceAdapter, commontray.EventSource, error) {
		t := linuxtray.New(name)
		return t, t, nil
	})
}
