//go:build windows

// Package wintray is the Windows tray backend: a hidden message window, a
// GetMessage pump, and a Shell_NotifyIcon tray slot.
package wintray

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/gonutz/w32/v2"
	"golang.org/x/sys/windows"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

const notifyIconID = 1

var (
	// One window procedure callback for the whole process; windows are
	// routed back to their tray through the hwnd map.
	wndProcOnce     sync.Once
	wndProcCallback uintptr

	windowsMu  sync.Mutex
	windowsMap = map[windows.Handle]*winTray{}
	// creating is the tray whose window is mid-creation; early messages
	// arrive before CreateWindowEx returns the hwnd.
	creating *winTray

	// createMu serializes window creation so `creating` stays unambiguous.
	createMu sync.Mutex
)

// winTray implements both the resource adapter and the event source over
// one hidden window. Create, Start and Shutdown run on the pump thread;
// Inject, UpdateTitle, UpdateIcon and Destroy may come from any thread.
type winTray struct {
	name string

	// deliver is written before the pump starts and read only on the pump
	// thread.
	deliver func(commontray.Event)

	// windowGone flips when WM_DESTROY arrives; shutdownSent makes sure
	// the pump sees exactly one ShutdownRequested. Both are touched inside
	// the window procedure, which must not block on t.mu.
	windowGone   atomic.Bool
	shutdownSent atomic.Bool

	mu        sync.Mutex
	instance  windows.Handle
	className *uint16
	hwnd      windows.Handle
	hicon     windows.Handle
	added     bool
	shutdown  bool
}

// New returns an unstarted backend for one tray icon. The name becomes part
// of the window class, which is what Windows uses to re-find the slot.
func New(name string) *winTray {
	return &winTray{name: name}
}

// Create registers the window class, creates the hidden window, builds the
// HICON and adds the notification area icon. On any failure everything
// created so far is torn back down and the platform error code is reported.
func (t *winTray) Create(img *commontray.Image, title string) (commontray.Handle, error) {
	inst, err := windows.GetModuleHandle(nil)
	if err != nil {
		return 0, creationError("GetModuleHandle", err)
	}

	className, err := windows.UTF16PtrFromString("trayicon-" + t.name)
	if err != nil {
		return 0, &commontray.CreationError{Op: "class name", Err: err}
	}

	tip, err := encodeTip(title)
	if err != nil {
		return 0, &commontray.CreationError{Op: "tooltip", Err: err}
	}

	wndProcOnce.Do(func() {
		wndProcCallback = syscall.NewCallback(wndProcEntry)
	})

	wc := wndClassEx{
		Size:      uint32(unsafe.Sizeof(wndClassEx{})),
		WndProc:   wndProcCallback,
		Instance:  inst,
		ClassName: className,
	}
	createMu.Lock()
	atom, _, callErr := pRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 {
		createMu.Unlock()
		return 0, creationError("RegisterClassEx", callErr)
	}

	windowsMu.Lock()
	creating = t
	windowsMu.Unlock()
	hwnd, _, callErr := pCreateWindowEx.Call(
		uintptr(w32.WS_EX_TOOLWINDOW),
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(className)),
		uintptr(w32.WS_OVERLAPPED),
		0, 0, 0, 0,
		0, 0,
		uintptr(inst),
		0,
	)
	windowsMu.Lock()
	creating = nil
	if hwnd != 0 {
		windowsMap[windows.Handle(hwnd)] = t
	}
	windowsMu.Unlock()
	createMu.Unlock()
	if hwnd == 0 {
		pUnregisterClass.Call(uintptr(unsafe.Pointer(className)), uintptr(inst))
		return 0, creationError("CreateWindowEx", callErr)
	}

	hicon, err := newIconHandle(img)
	if err != nil {
		t.dropWindow(windows.Handle(hwnd), className, inst)
		return 0, err
	}

	t.mu.Lock()
	t.instance = inst
	t.className = className
	t.hwnd = windows.Handle(hwnd)
	t.hicon = hicon
	t.mu.Unlock()

	nid := t.notifyData()
	nid.Flags = nifMessage | nifIcon | nifTip
	nid.CallbackMessage = wmTrayCallback
	nid.Icon = hicon
	nid.Tip = tip
	if err := shellNotify(nimAdd, &nid); err != nil {
		pDestroyIcon.Call(uintptr(hicon))
		t.dropWindow(windows.Handle(hwnd), className, inst)
		t.mu.Lock()
		t.hwnd, t.hicon = 0, 0
		t.mu.Unlock()
		return 0, err
	}
	t.mu.Lock()
	t.added = true
	t.mu.Unlock()

	return commontray.Handle(hwnd), nil
}

// Start pumps window messages on the calling thread until the window posts
// WM_QUIT after its shutdown sequence.
func (t *winTray) Start(deliver func(commontray.Event)) error {
	t.deliver = deliver
	var m msg
	for {
		ret, _, callErr := pGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if ret == 0 {
			// WM_QUIT
			return nil
		}
		if ret == ^uintptr(0) {
			if callErr != nil && callErr != syscall.Errno(0) {
				return fmt.Errorf("GetMessage: %w", callErr)
			}
			return errors.New("GetMessage failed")
		}
		pTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		pDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// Inject posts an event to the tray window from any thread. Events posted
// after the window is gone are dropped.
func (t *winTray) Inject(ev commontray.Event) {
	t.mu.Lock()
	hwnd := t.hwnd
	t.mu.Unlock()
	if hwnd == 0 || t.windowGone.Load() {
		return
	}
	ret, _, callErr := pPostMessage.Call(uintptr(hwnd), wmInjectEvent, uintptr(ev), 0)
	if ret == 0 {
		slog.Warn("tray event injection failed", "event", ev, "error", callErr)
	}
}

// Shutdown destroys the window if it still exists and unregisters the
// class. It runs on the pump thread after Start has returned.
func (t *winTray) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown {
		return nil
	}
	t.shutdown = true
	if t.hwnd != 0 {
		if !t.windowGone.Load() {
			pDestroyWindow.Call(uintptr(t.hwnd))
		}
		windowsMu.Lock()
		delete(windowsMap, t.hwnd)
		windowsMu.Unlock()
		t.hwnd = 0
	}
	if t.className != nil {
		pUnregisterClass.Call(uintptr(unsafe.Pointer(t.className)), uintptr(t.instance))
		t.className = nil
	}
	return nil
}

// UpdateTitle replaces the tooltip on the live tray slot.
func (t *winTray) UpdateTitle(_ commontray.Handle, title string) error {
	tip, err := encodeTip(title)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.added {
		return commontray.ErrNotRunning
	}
	nid := t.notifyData()
	nid.Flags = nifTip
	nid.Tip = tip
	if err := shellNotify(nimModify, &nid); err != nil {
		return fmt.Errorf("modify tooltip: %w", err)
	}
	return nil
}

// UpdateIcon swaps the HICON on the live tray slot and releases the old one.
func (t *winTray) UpdateIcon(_ commontray.Handle, img *commontray.Image) error {
	hicon, err := newIconHandle(img)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.added {
		pDestroyIcon.Call(uintptr(hicon))
		return commontray.ErrNotRunning
	}
	nid := t.notifyData()
	nid.Flags = nifIcon
	nid.Icon = hicon
	if err := shellNotify(nimModify, &nid); err != nil {
		pDestroyIcon.Call(uintptr(hicon))
		return fmt.Errorf("modify icon: %w", err)
	}
	if t.hicon != 0 {
		pDestroyIcon.Call(uintptr(t.hicon))
	}
	t.hicon = hicon
	return nil
}

// Destroy removes the notification area icon and releases the HICON.
// Calling it again is a no-op.
func (t *winTray) Destroy(_ commontray.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeNotifyIconLocked()
	if t.hicon != 0 {
		pDestroyIcon.Call(uintptr(t.hicon))
		t.hicon = 0
	}
	return nil
}

func (t *winTray) removeNotifyIconLocked() {
	if !t.added {
		return
	}
	t.added = false
	if t.windowGone.Load() {
		// The shell drops the icon together with its window.
		return
	}
	nid := t.notifyData()
	if err := shellNotify(nimDelete, &nid); err != nil {
		slog.Warn("failed to remove notify icon", "error", err)
	}
}

func (t *winTray) notifyData() notifyIconData {
	return notifyIconData{
		Size: uint32(unsafe.Sizeof(notifyIconData{})),
		Wnd:  t.hwnd,
		ID:   notifyIconID,
	}
}

// dropWindow unwinds a half-built window during a failed Create.
func (t *winTray) dropWindow(hwnd windows.Handle, className *uint16, inst windows.Handle) {
	pDestroyWindow.Call(uintptr(hwnd))
	windowsMu.Lock()
	delete(windowsMap, hwnd)
	windowsMu.Unlock()
	pUnregisterClass.Call(uintptr(unsafe.Pointer(className)), uintptr(inst))
}

// deliverShutdown hands the pump exactly one ShutdownRequested.
func (t *winTray) deliverShutdown() {
	if !t.shutdownSent.CompareAndSwap(false, true) {
		return
	}
	if t.deliver != nil {
		t.deliver(commontray.ShutdownRequested)
	}
}

// wndProc handles messages for one tray window. It runs inside
// DispatchMessage on the pump thread and must not block on t.mu: early
// messages can arrive while Create still runs on this same thread.
func (t *winTray) wndProc(hwnd uintptr, m uint32, wparam, lparam uintptr) uintptr {
	switch m {
	case wmTrayCallback:
		switch lparam {
		case w32.WM_LBUTTONUP:
			if t.deliver != nil {
				t.deliver(commontray.PrimaryActivate)
			}
		case w32.WM_RBUTTONUP:
			if t.deliver != nil {
				t.deliver(commontray.SecondaryActivate)
			}
		}
		return 0
	case wmInjectEvent:
		ev := commontray.Event(wparam)
		if ev == commontray.ShutdownRequested {
			t.mu.Lock()
			t.removeNotifyIconLocked()
			t.mu.Unlock()
			t.deliverShutdown()
			pDestroyWindow.Call(hwnd)
			return 0
		}
		if t.deliver != nil {
			t.deliver(ev)
		}
		return 0
	case w32.WM_DESTROY:
		t.windowGone.Store(true)
		t.deliverShutdown()
		if t.deliver != nil {
			// Only quit a pump that is actually running; during a failed
			// Create this thread's queue belongs to the caller.
			pPostQuitMessage.Call(0)
		}
		return 0
	}
	ret, _, _ := pDefWindowProc.Call(hwnd, uintptr(m), wparam, lparam)
	return ret
}

func wndProcEntry(hwnd uintptr, m uint32, wparam, lparam uintptr) uintptr {
	windowsMu.Lock()
	t := windowsMap[windows.Handle(hwnd)]
	if t == nil && creating != nil {
		t = creating
		windowsMap[windows.Handle(hwnd)] = t
	}
	windowsMu.Unlock()
	if t == nil {
		ret, _, _ := pDefWindowProc.Call(hwnd, uintptr(m), wparam, lparam)
		return ret
	}
	return t.wndProc(hwnd, m, wparam, lparam)
}

func shellNotify(cmd uintptr, nid *notifyIconData) error {
	ret, _, callErr := pShellNotifyIcon.Call(cmd, uintptr(unsafe.Pointer(nid)))
	if ret == 0 {
		return creationError("Shell_NotifyIcon", callErr)
	}
	return nil
}

// creationError wraps a failed win32 call with its error code.
func creationError(op string, callErr error) *commontray.CreationError {
	var code uint32
	var errno syscall.Errno
	if errors.As(callErr, &errno) {
		code = uint32(errno)
	}
	return &commontray.CreationError{Op: op, Code: code, Err: callErr}
}
