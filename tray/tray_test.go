package tray

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

// Mock backend implementation for testing; it is both the adapter and the
// event source, like the real platforms.
type mockBackend struct {
	mu        sync.Mutex
	created   int
	destroyed int
	shutdowns int
	title     string
	createErr error

	events   chan commontray.Event
	quit     chan struct{}
	quitOnce sync.Once
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		events: make(chan commontray.Event, 16),
		quit:   make(chan struct{}),
	}
}

func (m *mockBackend) Create(img *commontray.Image, title string) (commontray.Handle, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.mu.Lock()
	m.created++
	m.title = title
	m.mu.Unlock()
	return commontray.Handle(42), nil
}

func (m *mockBackend) UpdateTitle(_ commontray.Handle, title string) error {
	m.mu.Lock()
	m.title = title
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) UpdateIcon(_ commontray.Handle, _ *commontray.Image) error {
	return nil
}

func (m *mockBackend) Destroy(_ commontray.Handle) error {
	m.mu.Lock()
	m.destroyed++
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) Start(deliver func(commontray.Event)) error {
	for {
		select {
		case ev := <-m.events:
			deliver(ev)
		case <-m.quit:
			deliver(commontray.ShutdownRequested)
			return nil
		}
	}
}

func (m *mockBackend) Inject(ev commontray.Event) {
	if ev == commontray.ShutdownRequested {
		m.quitOnce.Do(func() { close(m.quit) })
		return
	}
	m.events <- ev
}

func (m *mockBackend) Shutdown() error {
	m.mu.Lock()
	m.shutdowns++
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) destroyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func installMockBackend(t *testing.T, m *mockBackend) {
	t.Helper()
	backendsMu.Lock()
	prev, had := backends[hostOS]
	backendsMu.Unlock()
	RegisterBackend(hostOS, func(string) (commontray.ResourceAdapter, commontray.EventSource, error) {
		return m, m, nil
	})
	t.Cleanup(func() {
		backendsMu.Lock()
		if had {
			backends[hostOS] = prev
		} else {
			delete(backends, hostOS)
		}
		backendsMu.Unlock()
	})
}

func testImage() *commontray.Image {
	return &commontray.Image{Width: 2, Height: 2, Pixels: make([]byte, 16)}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunLifecycle(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)
	if ic.State() != StateCreated {
		t.Fatalf("expected created state, got %v", ic.State())
	}

	runDone := make(chan error, 1)
	go func() { runDone <- ic.Run() }()

	waitFor(t, "icon to start", func() bool { return ic.State() == StateRunning })

	select {
	case err := <-runDone:
		t.Fatalf("Run returned before Stop: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ic.Stop()
	if err := <-runDone; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ic.State() != StateStopped {
		t.Errorf("expected stopped state, got %v", ic.State())
	}
	if got := m.destroyCount(); got != 1 {
		t.Errorf("expected 1 destroy, got %d", got)
	}
	if m.shutdowns != 1 {
		t.Errorf("expected 1 shutdown, got %d", m.shutdowns)
	}
}

func TestRunUnsupportedPlatform(t *testing.T) {
	prev := hostOS
	hostOS = "testos-without-backend"
	t.Cleanup(func() { hostOS = prev })

	ic := New("test-icon", "hello", testImage(), nil, nil)
	if err := ic.Run(); !errors.Is(err, commontray.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if ic.State() != StateCreated {
		t.Errorf("expected state to stay created, got %v", ic.State())
	}

	if err := ic.RunDetached(); !errors.Is(err, commontray.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform from RunDetached, got %v", err)
	}
	if ic.State() != StateCreated {
		t.Errorf("expected state to stay created, got %v", ic.State())
	}
}

func TestRunCreationFailure(t *testing.T) {
	m := newMockBackend()
	m.createErr = &commontray.CreationError{Op: "Create", Code: 5, Err: errors.New("boom")}
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)
	err := ic.Run()
	var ce *commontray.CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CreationError, got %v", err)
	}
	if ce.Code != 5 {
		t.Errorf("expected platform code 5, got %d", ce.Code)
	}
	if ic.State() != StateCreated {
		t.Errorf("expected state to stay created, got %v", ic.State())
	}
	if got := m.destroyCount(); got != 0 {
		t.Errorf("expected no destroy after failed create, got %d", got)
	}
}

func TestRunBadImage(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", &commontray.Image{Width: 2, Height: 2, Pixels: make([]byte, 3)}, nil, nil)
	if err := ic.Run(); !errors.Is(err, commontray.ErrBadImage) {
		t.Fatalf("expected ErrBadImage, got %v", err)
	}
	if ic.State() != StateCreated {
		t.Errorf("expected state to stay created, got %v", ic.State())
	}
}

func TestStoppedIconCannotRestart(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	ic.Stop()

	if err := ic.Run(); !errors.Is(err, commontray.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := ic.RunDetached(); !errors.Is(err, commontray.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted from RunDetached, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)

	// Stop before the icon ever ran is a no-op.
	ic.Stop()
	if ic.State() != StateCreated {
		t.Fatalf("expected created state after early Stop, got %v", ic.State())
	}

	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ic.Stop()
		}()
	}
	wg.Wait()
	ic.Stop()

	if ic.State() != StateStopped {
		t.Errorf("expected stopped state, got %v", ic.State())
	}
	if got := m.destroyCount(); got != 1 {
		t.Errorf("expected exactly 1 destroy, got %d", got)
	}
}

func TestUpdateOutsideRunning(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)

	if err := ic.UpdateTitle("nope"); !errors.Is(err, commontray.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before run, got %v", err)
	}
	if err := ic.UpdateIcon(testImage()); !errors.Is(err, commontray.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before run, got %v", err)
	}

	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	ic.Stop()

	if err := ic.UpdateTitle("nope"); !errors.Is(err, commontray.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
	m.mu.Lock()
	title := m.title
	m.mu.Unlock()
	if title != "hello" {
		t.Errorf("rejected update still reached the backend: title %q", title)
	}
}

func TestUpdateWhileRunning(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	defer ic.Stop()

	if err := ic.UpdateTitle("updated"); err != nil {
		t.Fatalf("UpdateTitle failed: %v", err)
	}
	if ic.Title() != "updated" {
		t.Errorf("expected title %q, got %q", "updated", ic.Title())
	}
	m.mu.Lock()
	title := m.title
	m.mu.Unlock()
	if title != "updated" {
		t.Errorf("expected backend title %q, got %q", "updated", title)
	}

	if err := ic.UpdateIcon(testImage()); err != nil {
		t.Fatalf("UpdateIcon failed: %v", err)
	}
}

func TestDispatchPrimaryOnly(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	var primary, secondary atomic.Int32
	ic := New("test-icon", "hello", testImage(),
		func(*Icon) { primary.Add(1) },
		func(*Icon) { secondary.Add(1) },
	)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	defer ic.Stop()

	m.Inject(commontray.PrimaryActivate)
	waitFor(t, "primary callback", func() bool { return primary.Load() == 1 })
	time.Sleep(20 * time.Millisecond)

	if got := primary.Load(); got != 1 {
		t.Errorf("expected exactly 1 primary invocation, got %d", got)
	}
	if got := secondary.Load(); got != 0 {
		t.Errorf("secondary callback invoked %d times for a primary event", got)
	}
}

func TestDispatchPreservesEventOrder(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	var mu sync.Mutex
	var order []commontray.Event
	record := func(ev commontray.Event) ClickHandler {
		return func(*Icon) {
			mu.Lock()
			order = append(order, ev)
			mu.Unlock()
		}
	}
	ic := New("test-icon", "hello", testImage(),
		record(commontray.PrimaryActivate),
		record(commontray.SecondaryActivate),
	)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	defer ic.Stop()

	want := []commontray.Event{
		commontray.PrimaryActivate,
		commontray.SecondaryActivate,
		commontray.PrimaryActivate,
		commontray.SecondaryActivate,
		commontray.PrimaryActivate,
	}
	for _, ev := range want {
		m.Inject(ev)
	}
	waitFor(t, "all callbacks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(want)
	})

	mu.Lock()
	defer mu.Unlock()
	for i, ev := range want {
		if order[i] != ev {
			t.Fatalf("callback %d fired for %v, want %v (full order %v)", i, order[i], ev, order)
		}
	}
}

func TestNilCallbacksAreNoops(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	ic := New("test-icon", "hello", testImage(), nil, nil)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	m.Inject(commontray.PrimaryActivate)
	m.Inject(commontray.SecondaryActivate)
	ic.Stop()
}

func TestCallbackPanicIsolated(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	surfaced := make(chan error, 1)
	SetErrorHandler(func(err error) {
		select {
		case surfaced <- err:
		default:
		}
	})
	t.Cleanup(func() { SetErrorHandler(nil) })

	var secondary atomic.Int32
	ic := New("test-icon", "hello", testImage(),
		func(*Icon) { panic("callback exploded") },
		func(*Icon) { secondary.Add(1) },
	)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	defer ic.Stop()

	m.Inject(commontray.PrimaryActivate)
	select {
	case err := <-surfaced:
		if err == nil {
			t.Fatal("error hook received nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("panic was not surfaced through the error hook")
	}

	// The pump survived; the next event still reaches its callback.
	m.Inject(commontray.SecondaryActivate)
	waitFor(t, "secondary callback after panic", func() bool { return secondary.Load() == 1 })
}

func TestRunDetachedHandshake(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	var delivered atomic.Int32
	ic := New("test-icon", "hello", testImage(),
		func(*Icon) { delivered.Add(1) },
		nil,
	)
	if err := ic.RunDetached(); err != nil {
		t.Fatalf("RunDetached failed: %v", err)
	}
	defer ic.Stop()

	// The handshake covers handle creation only; nothing has been pumped.
	if ic.State() != StateRunning {
		t.Fatalf("expected running state after RunDetached, got %v", ic.State())
	}
	if got := delivered.Load(); got != 0 {
		t.Fatalf("%d events delivered before any were injected", got)
	}

	m.Inject(commontray.PrimaryActivate)
	waitFor(t, "event delivery after RunDetached returned", func() bool { return delivered.Load() == 1 })
}

func TestStopFromInsideCallback(t *testing.T) {
	m := newMockBackend()
	installMockBackend(t, m)

	var ic *Icon
	ic = New("test-icon", "hello", testImage(),
		func(*Icon) { ic.Stop() },
		nil,
	)
	runDone := make(chan error, 1)
	go func() { runDone <- ic.Run() }()
	waitFor(t, "icon to start", func() bool { return ic.State() == StateRunning })

	m.Inject(commontray.PrimaryActivate)

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop from inside a callback deadlocked the pump")
	}
	if ic.State() != StateStopped {
		t.Errorf("expected stopped state, got %v", ic.State())
	}
}

func TestGeneratedName(t *testing.T) {
	ic := New("", "hello", testImage(), nil, nil)
	if ic.Name() == "" {
		t.Error("expected a generated name for an empty one")
	}
	other := New("", "hello", testImage(), nil, nil)
	if ic.Name() == other.Name() {
		t.Error("expected distinct generated names")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateCreated, "created"},
		{StateRunning, "running"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.expected {
			t.Errorf("State(%d).String() = %q, want %q", test.state, got, test.expected)
		}
	}
}
