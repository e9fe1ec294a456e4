// Package channel ties a transport, a diagnostic sink, and (on the
// server side) an export table together into the single handle the
// server and client packages drive: a mini-ipc channel (§4.1, §4.2).
//
// A Channel corresponds to one struct mpc_link of the original library,
// except that the process-wide link list (__mpc_base) and the
// per-channel export list (mpc_flist) are both promoted to explicit
// types: registry.Registry for the former, and the exports field here
// for the latter, per spec Design Notes §9.
package channel

import (
	"fmt"
	"sync"

	"mini-ipc/diag"
	"mini-ipc/message"
	"mini-ipc/middleware"
	"mini-ipc/registry"
	"mini-ipc/transport"
)

// Role distinguishes a server channel (accepts clients, dispatches
// requests) from a client channel (issues calls).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Channel is one open mini-ipc link, server- or client-side.
type Channel struct {
	name string
	role Role

	srv transport.Server // non-nil for RoleServer
	cli transport.Client // non-nil for RoleClient

	diag diag.Sink

	mu      sync.Mutex
	exports map[string]message.Descriptor
	handler map[string]message.Handler

	reg *registry.Registry
}

// Option configures a Channel at creation time.
type Option func(*Channel)

// WithDiag attaches a diagnostic sink, mirroring minipc_set_logfile.
func WithDiag(sink diag.Sink) Option {
	return func(c *Channel) { c.diag = sink }
}

// WithRegistry registers the channel into a Registry other than the
// package-wide Default, e.g. for tests that want isolation.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Channel) { c.reg = r }
}

// CreateServer opens a server channel. name selects the transport: a
// "shm:<key>" or "mem:<hex>" name selects shared memory (§4.4), anything
// else selects a Unix-domain stream socket under transport.BasePath
// (§4.3), matching __minipc_link_create's dispatch on name.
func CreateServer(name string, opts ...Option) (*Channel, error) {
	c := &Channel{
		name:    name,
		role:    RoleServer,
		diag:    diag.Noop,
		exports: make(map[string]message.Descriptor),
		handler: make(map[string]message.Handler),
		reg:     registry.Default,
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if transport.IsMemName(name) {
		c.srv, err = transport.NewShmemServer(name)
	} else {
		c.srv, err = transport.NewStreamServer(name)
	}
	if err != nil {
		return nil, err
	}
	if err := c.reg.Add(c.registryKey(), c); err != nil {
		c.srv.Close()
		return nil, err
	}
	c.diag.Printf("channel: server %q ready", name)
	return c, nil
}

// CreateClient opens a client channel connected to an existing server
// channel of the same name.
func CreateClient(name string, opts ...Option) (*Channel, error) {
	c := &Channel{
		name: name,
		role: RoleClient,
		diag: diag.Noop,
		reg:  registry.Default,
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if transport.IsMemName(name) {
		c.cli, err = transport.NewShmemClient(name)
	} else {
		c.cli, err = transport.NewStreamClient(name)
	}
	if err != nil {
		return nil, err
	}
	if err := c.reg.Add(c.registryKey(), c); err != nil {
		c.cli.Close()
		return nil, err
	}
	c.diag.Printf("channel: client %q connected", name)
	return c, nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Role() Role { return c.role }

// roleTag distinguishes a server channel from a client channel sharing
// the same Name in the registry, so a process can both export and call
// a channel of the same name (§8 scenario 6) without the two colliding.
func (c *Channel) roleTag() string {
	if c.role == RoleServer {
		return "server"
	}
	return "client"
}

// registryKey is the key c registers itself under: its Name qualified
// by role, so a server and a client of the same Name coexist.
func (c *Channel) registryKey() string {
	return c.name + "#" + c.roleTag()
}

func (c *Channel) Diag() diag.Sink { return c.diag }

// Server returns the transport.Server half of a server channel, nil on
// a client channel.
func (c *Channel) Server() transport.Server { return c.srv }

// Client returns the transport.Client half of a client channel, nil on
// a server channel.
func (c *Channel) Client() transport.Client { return c.cli }

// Export registers a procedure under name, the equivalent of
// minipc_export. Exporting a name that's already bound replaces the
// previous binding rather than erroring: spec §4.2 places no
// uniqueness requirement on exports and the original's flist push-front
// behavior shadows an old entry the same way.
func (c *Channel) Export(name string, pd message.Descriptor, h message.Handler) error {
	return c.ExportWithMiddleware(name, pd, h)
}

// ExportWithMiddleware is Export with a chain of cross-cutting
// decorators (mini-ipc/middleware) wrapped around h, applied in the
// order given.
func (c *Channel) ExportWithMiddleware(name string, pd message.Descriptor, h message.Handler, mws ...middleware.Middleware) error {
	if c.role != RoleServer {
		return fmt.Errorf("channel: %q: export is a server-only operation", c.name)
	}
	if len(mws) > 0 {
		h = middleware.Chain(mws...)(h)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exports[name] = pd
	c.handler[name] = h
	c.diag.Printf("channel: exported %q", name)
	return nil
}

// Unexport removes a previously exported procedure.
func (c *Channel) Unexport(name string) error {
	if c.role != RoleServer {
		return fmt.Errorf("channel: %q: unexport is a server-only operation", c.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.exports[name]; !ok {
		return fmt.Errorf("channel: %q: %q is not exported", c.name, name)
	}
	delete(c.exports, name)
	delete(c.handler, name)
	c.diag.Printf("channel: unexported %q", name)
	return nil
}

// Lookup returns the descriptor and handler bound to name, if any.
func (c *Channel) Lookup(name string) (message.Descriptor, message.Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pd, ok := c.exports[name]
	if !ok {
		return message.Descriptor{}, nil, false
	}
	return pd, c.handler[name], true
}

// Close tears down the channel's transport and removes it from its
// registry.
func (c *Channel) Close() error {
	c.reg.Remove(c.registryKey())
	if c.srv != nil {
		return c.srv.Close()
	}
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}
