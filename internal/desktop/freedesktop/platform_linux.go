//go:build linux

package freedesktop

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"notifysync/internal/desktop"
	logx "notifysync/pkg/logx"
)

type Platform struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	log     logx.Logger
	server  string

	mu       sync.Mutex
	handlers map[uint32]func(string)
	byTag    map[string]uint32

	sigs chan *dbus.Signal
	done chan struct{}
}

// New connects to the session bus and probes the notification server.
func New(ctx context.Context, appName string, log logx.Logger) (*Platform, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	obj := conn.Object(busName, objectPath)

	var name, vendor, version, specVersion string
	if err := obj.CallWithContext(ctx, memberServerInfo, 0).Store(&name, &vendor, &version, &specVersion); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notification server: %w", err)
	}

	if err := conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(iface),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe notification signals: %w", err)
	}

	p := &Platform{
		conn:     conn,
		obj:      obj,
		appName:  appName,
		log:      log.With(logx.String("comp", "freedesktop")),
		server:   name + " " + version,
		handlers: map[uint32]func(string){},
		byTag:    map[string]uint32{},
		sigs:     make(chan *dbus.Signal, 32),
		done:     make(chan struct{}),
	}
	conn.Signal(p.sigs)
	go p.signalLoop()
	p.log.Info("notification server ready", logx.String("server", p.server), logx.String("spec", specVersion))
	return p, nil
}

func (p *Platform) Supported() bool { return true }

func (p *Platform) Permission() desktop.Permission { return desktop.PermissionGranted }

func (p *Platform) RequestPermission(context.Context) (desktop.Permission, error) {
	return desktop.PermissionGranted, nil
}

func (p *Platform) Show(t desktop.Toast, onAction func(string)) (desktop.Handle, error) {
	p.mu.Lock()
	replaces := p.byTag[t.Tag]
	p.mu.Unlock()

	req := buildRequest(p.appName, replaces, t)
	var id uint32
	if err := p.obj.Call(memberNotify, 0, req.args()...).Store(&id); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	p.mu.Lock()
	if replaces != 0 && replaces != id {
		delete(p.handlers, replaces)
	}
	p.handlers[id] = onAction
	if t.Tag != "" {
		p.byTag[t.Tag] = id
	}
	p.mu.Unlock()
	return &handle{p: p, id: id, tag: t.Tag}, nil
}

type handle struct {
	p   *Platform
	id  uint32
	tag string
}

func (h *handle) Close() error {
	h.p.forget(h.id, h.tag)
	return h.p.obj.Call(memberClose, 0, h.id).Err
}

func (p *Platform) forget(id uint32, tag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, id)
	if tag != "" && p.byTag[tag] == id {
		delete(p.byTag, tag)
	}
}

func (p *Platform) signalLoop() {
	defer close(p.done)
	for sig := range p.sigs {
		id, action, ok := parseSignal(sig)
		if !ok {
			continue
		}
		p.mu.Lock()
		fn := p.handlers[id]
		if action == desktop.ActionClosed {
			delete(p.handlers, id)
			for tag, tid := range p.byTag {
				if tid == id {
					delete(p.byTag, tag)
				}
			}
		}
		p.mu.Unlock()
		if fn != nil {
			fn(action)
		}
	}
}

// Close detaches from the bus.
func (p *Platform) Close() error {
	p.conn.RemoveSignal(p.sigs)
	err := p.conn.Close()
	close(p.sigs)
	<-p.done
	return err
}
