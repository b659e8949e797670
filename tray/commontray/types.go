// Package commontray holds the platform-neutral contracts shared by the
// tray lifecycle controller and the per-platform backends.
package commontray

import "fmt"

// Event is one abstract input event produced by a platform event source.
type Event int

const (
	// PrimaryActivate is a primary ("left") click on the tray slot.
	PrimaryActivate Event = iota + 1
	// SecondaryActivate is a secondary ("right") click on the tray slot.
	SecondaryActivate
	// ShutdownRequested asks the pump to exit. It is produced by the native
	// platform on teardown signals, or injected synthetically by Stop.
	ShutdownRequested
)

func (e Event) String() string {
	switch e {
	case PrimaryActivate:
		return "primary-activate"
	case SecondaryActivate:
		return "secondary-activate"
	case ShutdownRequested:
		return "shutdown-requested"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Handle is an opaque OS-issued identifier for a live tray slot. It is
// exclusively owned by one running icon and never shared.
type Handle uintptr

// Image is a decoded RGBA pixel buffer supplied by the caller. Pixels are
// row-major, 4 bytes per pixel.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Validate checks the buffer dimensions before any native call sees them.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrBadImage)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadImage, img.Width, img.Height)
	}
	if want := img.Width * img.Height * 4; len(img.Pixels) != want {
		return fmt.Errorf("%w: have %d pixel bytes, want %d", ErrBadImage, len(img.Pixels), want)
	}
	return nil
}

// EventSource owns a platform's native event pump.
type EventSource interface {
	// Start pumps native events on the calling goroutine, translating them
	// into Events handed to deliver. It returns after ShutdownRequested has
	// been delivered.
	Start(deliver func(Event)) error

	// Inject enqueues an event for delivery. It is safe to call from any
	// goroutine concurrently with Start and wakes a blocked pump.
	Inject(Event)

	// Shutdown releases pump-internal resources. It is called at most once,
	// and must be safe even if Start never delivered an event.
	Shutdown() error
}

// ResourceAdapter materializes and mutates the platform-native tray slot.
// Implementations serialize internally: Update calls may arrive from a
// goroutine other than the pump.
type ResourceAdapter interface {
	Create(img *Image, title string) (Handle, error)
	UpdateTitle(h Handle, title string) error
	UpdateIcon(h Handle, img *Image) error

	// Destroy releases the native handle. Calling it twice must not corrupt
	// process state.
	Destroy(h Handle) error
}
