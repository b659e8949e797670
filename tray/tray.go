// Package tray runs a system tray icon with primary/secondary click
// callbacks on top of a per-platform backend. The caller supplies a decoded
// RGBA image and a hover title; image decoding and menu construction stay
// with the caller.
package tray

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

// State tracks where an icon is in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	errorHandlerMu sync.Mutex
	errorHandler   = defaultErrorHandler
)

func defaultErrorHandler(err error) {
	slog.Error("tray error", "error", err)
}

// SetErrorHandler overrides the process-wide hook that receives errors with
// no return path, such as a panicking click callback. Passing nil restores
// the default slog handler.
func SetErrorHandler(h func(error)) {
	if h == nil {
		h = defaultErrorHandler
	}
	errorHandlerMu.Lock()
	errorHandler = h
	errorHandlerMu.Unlock()
}

func handleError(err error) {
	errorHandlerMu.Lock()
	h := errorHandler
	errorHandlerMu.Unlock()
	h(err)
}

// ClickHandler is invoked synchronously on the pump goroutine. A handler
// that blocks keeps the icon unresponsive until it returns.
type ClickHandler func(*Icon)

// Icon is a tray icon descriptor and its running instance. An Icon runs at
// most once: created, then running, then stopped for good.
type Icon struct {
	name        string
	onPrimary   ClickHandler
	onSecondary ClickHandler

	mu      sync.Mutex
	state   State
	title   string
	img     *commontray.Image
	adapter commontray.ResourceAdapter
	source  commontray.EventSource
	handle  commontray.Handle
	pumpGID uint64
	done    chan struct{}
}

// New builds an icon descriptor. The name is a stable opaque key some
// platforms use to re-associate the tray slot across restarts; when empty a
// fresh uuid is generated. Either click handler may be nil.
func New(name, title string, img *commontray.Image, onPrimary, onSecondary ClickHandler) *Icon {
	if name == "" {
		name = uuid.NewString()
	}
	return &Icon{
		name:        name,
		title:       title,
		img:         img,
		onPrimary:   onPrimary,
		onSecondary: onSecondary,
	}
}

// Name returns the name passed to New, or the generated one.
func (ic *Icon) Name() string { return ic.name }

// Title returns the current hover title.
func (ic *Icon) Title() string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.title
}

// State returns the current lifecycle state.
func (ic *Icon) State() State {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.state
}

// Run shows the icon and pumps its events on the calling goroutine. It
// blocks until Stop is called or the platform requests shutdown, tears the
// native resources down, and returns with the icon stopped. It fails
// without side effects when no backend is registered for this platform,
// when native creation fails, or when the icon already ran.
func (ic *Icon) Run() error {
	// Native message queues are bound to the creating thread, so the
	// creating goroutine stays locked to its thread for the whole pump.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := ic.start(); err != nil {
		return err
	}
	return ic.pump()
}

// RunDetached shows the icon and pumps its events on a background
// goroutine, so the caller can continue into its own blocking UI loop. It
// returns once the native handle exists and the icon is visible, or with
// the creation error. The pump has not necessarily processed any event yet
// when RunDetached returns.
func (ic *Icon) RunDetached() error {
	ready := make(chan error, 1)
	go func() {
		// Creation happens on the pump goroutine: the native event queue
		// must belong to the thread that will drain it.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := ic.start(); err != nil {
			ready <- err
			return
		}
		ready <- nil
		ic.pump()
	}()
	return <-ready
}

// Stop requests shutdown and waits until the pump has exited and the native
// handle is released. It is idempotent, safe from any goroutine, and a
// no-op unless the icon is running. When called from inside a click
// callback it only injects the shutdown and returns; the pump finishes the
// teardown once the callback is done.
func (ic *Icon) Stop() {
	ic.mu.Lock()
	if ic.state != StateRunning {
		ic.mu.Unlock()
		return
	}
	source, done, pumpGID := ic.source, ic.done, ic.pumpGID
	ic.mu.Unlock()

	source.Inject(commontray.ShutdownRequested)
	if goroutineID() == pumpGID {
		return
	}
	<-done
}

// UpdateTitle changes the hover title of the live icon. It fails unless the
// icon is running.
func (ic *Icon) UpdateTitle(title string) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.state != StateRunning {
		return commontray.ErrNotRunning
	}
	if err := ic.adapter.UpdateTitle(ic.handle, title); err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	ic.title = title
	return nil
}

// UpdateIcon swaps the image of the live icon. It fails unless the icon is
// running.
func (ic *Icon) UpdateIcon(img *commontray.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.state != StateRunning {
		return commontray.ErrNotRunning
	}
	if err := ic.adapter.UpdateIcon(ic.handle, img); err != nil {
		return fmt.Errorf("update icon: %w", err)
	}
	ic.img = img
	return nil
}

// start materializes the native tray slot and transitions to running. On
// any failure the icon stays created and holds no native resources.
func (ic *Icon) start() error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.state != StateCreated {
		return commontray.ErrAlreadyStarted
	}
	if err := ic.img.Validate(); err != nil {
		return err
	}
	factory, err := resolveBackend()
	if err != nil {
		return err
	}
	adapter, source, err := factory(ic.name)
	if err != nil {
		return fmt.Errorf("init %s backend: %w", hostOS, err)
	}
	handle, err := adapter.Create(ic.img, ic.title)
	if err != nil {
		return err
	}
	ic.adapter = adapter
	ic.source = source
	ic.handle = handle
	ic.state = StateRunning
	ic.done = make(chan struct{})
	slog.Debug("tray icon created", "name", ic.name, "state", ic.state)
	return nil
}

// pump drains the event source until shutdown, then releases the native
// resources and transitions to stopped.
func (ic *Icon) pump() error {
	ic.mu.Lock()
	ic.pumpGID = goroutineID()
	source, adapter, handle := ic.source, ic.adapter, ic.handle
	ic.mu.Unlock()

	err := source.Start(ic.dispatch)
	if err != nil {
		err = fmt.Errorf("event pump: %w", err)
	}

	if derr := adapter.Destroy(handle); derr != nil {
		handleError(fmt.Errorf("destroy tray handle: %w", derr))
	}
	if serr := source.Shutdown(); serr != nil {
		handleError(fmt.Errorf("shut down event source: %w", serr))
	}

	ic.mu.Lock()
	ic.state = StateStopped
	ic.handle = 0
	done := ic.done
	ic.mu.Unlock()
	close(done)
	slog.Debug("tray icon stopped", "name", ic.name)
	return err
}

// dispatch routes one abstract event to the matching click handler. It runs
// on the pump goroutine.
func (ic *Icon) dispatch(ev commontray.Event) {
	switch ev {
	case commontray.PrimaryActivate:
		ic.invoke(ic.onPrimary)
	case commontray.SecondaryActivate:
		ic.invoke(ic.onSecondary)
	case commontray.ShutdownRequested:
		// The event source exits after delivering this one.
	default:
		handleError(fmt.Errorf("unknown tray event %v", ev))
	}
}

// invoke isolates a misbehaving handler: a panic is surfaced through the
// error hook instead of killing the pump.
func (ic *Icon) invoke(h ClickHandler) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			handleError(fmt.Errorf("tray click callback panicked: %v", r))
		}
	}()
	h(ic)
}

// goroutineID extracts the running goroutine's id from its stack header.
// Stop uses it to recognize being called from inside a click callback on
// the pump goroutine, where waiting for pump exit would deadlock.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}
