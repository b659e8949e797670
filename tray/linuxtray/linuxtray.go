// Package linuxtray is the Linux tray backend. It speaks the
// StatusNotifierItem protocol over the session bus and relies on the
// desktop's StatusNotifierWatcher to host the icon.
package linuxtray

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

const (
	itemInterface = "org.kde.StatusNotifierItem"
	itemPath      = dbus.ObjectPath("/StatusNotifierItem")

	watcherName      = "org.kde.StatusNotifierWatcher"
	watcherPath      = dbus.ObjectPath("/StatusNotifierWatcher")
	watcherInterface = "org.kde.StatusNotifierWatcher"
)

// itemSeq distinguishes multiple icons registered by one process.
var itemSeq atomic.Uint32

// sniTray implements both the resource adapter and the event source over
// one session bus connection. D-Bus method calls arrive on godbus worker
// goroutines and are funneled into the pump through an event channel.
type sniTray struct {
	name string

	events   chan commontray.Event
	quit     chan struct{}
	quitOnce sync.Once

	mu     sync.Mutex
	conn   *dbus.Conn
	props  *prop.Properties
	closed bool
}

// New returns an unstarted backend for one tray icon. The name becomes the
// item's Id property, the stable key hosts use across restarts.
func New(name string) *sniTray {
	return &sniTray{
		name:   name,
		events: make(chan commontray.Event, 16),
		quit:   make(chan struct{}),
	}
}

// Create connects to the session bus, exports the StatusNotifierItem
// object and registers it with the watcher. Without a watcher on the bus
// there is nothing to host the icon, so that is a creation failure too.
func (t *sniTray) Create(img *commontray.Image, title string) (commontray.Handle, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return 0, &commontray.CreationError{Op: "connect session bus", Err: err}
	}

	seq := itemSeq.Add(1)
	busName := fmt.Sprintf("org.kde.StatusNotifierItem-%d-%d", os.Getpid(), seq)
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err == nil && reply != dbus.RequestNameReplyPrimaryOwner {
		err = fmt.Errorf("bus name %s not acquired (reply %d)", busName, reply)
	}
	if err != nil {
		conn.Close()
		return 0, &commontray.CreationError{Op: "request bus name", Err: err}
	}

	if err := conn.Export(&sniItem{t: t}, itemPath, itemInterface); err != nil {
		conn.Close()
		return 0, &commontray.CreationError{Op: "export item", Err: err}
	}

	propSpec := map[string]map[string]*prop.Prop{
		itemInterface: {
			"Category":   {Value: "ApplicationStatus", Emit: prop.EmitTrue},
			"Id":         {Value: t.name, Emit: prop.EmitTrue},
			"Title":      {Value: title, Emit: prop.EmitTrue},
			"Status":     {Value: "Active", Emit: prop.EmitTrue},
			"IconName":   {Value: "", Emit: prop.EmitTrue},
			"IconPixmap": {Value: []pixmap{toPixmap(img)}, Emit: prop.EmitTrue},
			"ToolTip":    {Value: toTooltip(title), Emit: prop.EmitTrue},
			"ItemIsMenu": {Value: false, Emit: prop.EmitTrue},
		},
	}
	props, err := prop.Export(conn, itemPath, propSpec)
	if err != nil {
		conn.Close()
		return 0, &commontray.CreationError{Op: "export properties", Err: err}
	}

	node := &introspect.Node{
		Name: string(itemPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: itemInterface},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), itemPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return 0, &commontray.CreationError{Op: "export introspection", Err: err}
	}

	watcher := conn.Object(watcherName, watcherPath)
	call := watcher.Call(watcherInterface+".RegisterStatusNotifierItem", 0, busName)
	if call.Err != nil {
		conn.Close()
		return 0, &commontray.CreationError{Op: "register with watcher", Err: call.Err}
	}

	// A dropped session bus is this platform's native shutdown signal.
	go func() {
		<-conn.Context().Done()
		t.Inject(commontray.ShutdownRequested)
	}()

	t.mu.Lock()
	t.conn = conn
	t.props = props
	t.mu.Unlock()
	slog.Debug("status notifier item registered", "bus_name", busName, "id", t.name)

	return commontray.Handle(seq), nil
}

// Start drains translated events on the calling goroutine until shutdown
// is requested.
func (t *sniTray) Start(deliver func(commontray.Event)) error {
	for {
		select {
		case ev := <-t.events:
			deliver(ev)
		case <-t.quit:
			deliver(commontray.ShutdownRequested)
			return nil
		}
	}
}

// Inject enqueues an event for the pump. Safe from any goroutine; excess
// click events beyond the buffer are dropped, shutdown never is.
func (t *sniTray) Inject(ev commontray.Event) {
	if ev == commontray.ShutdownRequested {
		t.quitOnce.Do(func() { close(t.quit) })
		return
	}
	select {
	case t.events <- ev:
	default:
		slog.Warn("tray event dropped", "event", ev)
	}
}

// Shutdown closes the bus connection if Destroy has not already done so.
func (t *sniTray) Shutdown() error {
	return t.closeConn()
}

// UpdateTitle updates the Title and ToolTip properties and signals hosts.
func (t *sniTray) UpdateTitle(_ commontray.Handle, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.props == nil {
		return commontray.ErrNotRunning
	}
	t.props.SetMust(itemInterface, "Title", title)
	t.props.SetMust(itemInterface, "ToolTip", toTooltip(title))
	if err := t.conn.Emit(itemPath, itemInterface+".NewTitle"); err != nil {
		return fmt.Errorf("emit NewTitle: %w", err)
	}
	if err := t.conn.Emit(itemPath, itemInterface+".NewToolTip"); err != nil {
		return fmt.Errorf("emit NewToolTip: %w", err)
	}
	return nil
}

// UpdateIcon replaces the IconPixmap property and signals hosts.
func (t *sniTray) UpdateIcon(_ commontray.Handle, img *commontray.Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.props == nil {
		return commontray.ErrNotRunning
	}
	t.props.SetMust(itemInterface, "IconPixmap", []pixmap{toPixmap(img)})
	if err := t.conn.Emit(itemPath, itemInterface+".NewIcon"); err != nil {
		return fmt.Errorf("emit NewIcon: %w", err)
	}
	return nil
}

// Destroy drops the item by closing the bus connection; the watcher removes
// it when the name vanishes. Calling it again is a no-op.
func (t *sniTray) Destroy(_ commontray.Handle) error {
	return t.closeConn()
}

func (t *sniTray) closeConn() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.conn == nil {
		t.closed = true
		return nil
	}
	t.closed = true
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("close session bus: %w", err)
	}
	return nil
}

// sniItem carries only the D-Bus visible methods of the item interface.
type sniItem struct {
	t *sniTray
}

// Activate is a primary click on the item.
func (s *sniItem) Activate(x, y int32) *dbus.Error {
	s.t.Inject(commontray.PrimaryActivate)
	return nil
}

// SecondaryActivate is usually a middle click; hosts without menus send it
// for the secondary action as well.
func (s *sniItem) SecondaryActivate(x, y int32) *dbus.Error {
	s.t.Inject(commontray.SecondaryActivate)
	return nil
}

// ContextMenu is a secondary ("right") click on the item.
func (s *sniItem) ContextMenu(x, y int32) *dbus.Error {
	s.t.Inject(commontray.SecondaryActivate)
	return nil
}

// Scroll events are outside the two-button model and ignored.
func (s *sniItem) Scroll(delta int32, orientation string) *dbus.Error {
	return nil
}
