//go:build windows

package wintray

import "github.com/gonutz/w32/v2"

// Private window messages for the tray window.
const (
	// Shell callback message registered through NIF_MESSAGE.
	wmTrayCallback = w32.WM_USER + 1
	// Carrier for events injected from other threads; wParam is the event.
	wmInjectEvent = w32.WM_USER + 2
)

// Shell_NotifyIcon flags and commands.
const (
	nifMessage = 0x00000001
	nifIcon    = 0x00000002
	nifTip     = 0x00000004

	nimAdd    = 0x00000000
	nimModify = 0x00000001
	nimDelete = 0x00000002
)
