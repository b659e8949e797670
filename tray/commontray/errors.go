package commontray

import (
	"errors"
	"fmt"
)

// Error indicating the current OS has no registered tray backend.
var ErrUnsupportedPlatform = errors.New("this platform is not supported")

// Error indicating a mutation method was called outside the running state.
var ErrNotRunning = errors.New("tray icon is not running")

// Error indicating Run was called on an icon that already ran. A stopped
// icon cannot be restarted; create a fresh one instead.
var ErrAlreadyStarted = errors.New("tray icon was already started")

// Error indicating a caller-supplied pixel buffer is unusable.
var ErrBadImage = errors.New("invalid icon image")

// CreationError reports a failed native tray slot creation. Code carries
// the platform error code for diagnostics, 0 where the platform reports
// errors without one.
type CreationError struct {
	Op   string
	Code uint32
	Err  error
}

func (e *CreationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("tray resource creation failed: %s: code %#x: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("tray resource creation failed: %s: %v", e.Op, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }
