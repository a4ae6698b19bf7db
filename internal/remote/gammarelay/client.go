// Package gammarelay implements remote.Link on top of the wl-gammarelay-rs
// D-Bus interface.
package gammarelay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayctl/internal/property"
	"github.com/dokzlo13/relayctl/internal/remote"
)

// Bus coordinates of the daemon.
const (
	Service             = "rs.wl-gammarelay"
	Path                = dbus.ObjectPath("/")
	Interface           = "rs.wl.gammarelay"
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = "PropertiesChanged"

	busService       = "org.freedesktop.DBus"
	busPath          = dbus.ObjectPath("/org/freedesktop/DBus")
	nameOwnerChanged = "NameOwnerChanged"
)

// D-Bus error names that mean the daemon refused the request itself.
var rejectedErrors = map[string]bool{
	"org.freedesktop.DBus.Error.InvalidArgs":      true,
	"org.freedesktop.DBus.Error.PropertyReadOnly": true,
	"org.freedesktop.DBus.Error.UnknownProperty":  true,
}

// DialFunc opens a bus connection.
type DialFunc func() (*dbus.Conn, error)

// Client talks to the daemon over the session bus. The connection is opened on
// first use and reopened after it fails.
type Client struct {
	service string
	dial    DialFunc

	mu   sync.Mutex
	conn *dbus.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithService overrides the bus name of the daemon.
func WithService(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.service = name
		}
	}
}

// WithDial overrides how the bus connection is opened.
func WithDial(dial DialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// New creates a client. No connection is made until the first call.
func New(opts ...Option) *Client {
	c := &Client{
		service: Service,
		dial: func() (*dbus.Conn, error) {
			return dbus.ConnectSessionBus()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the bus connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Read fetches the current value of id from the daemon.
func (c *Client) Read(ctx context.Context, id property.ID) (float64, error) {
	conn, err := c.connection()
	if err != nil {
		return 0, err
	}

	var v dbus.Variant
	err = conn.Object(c.service, Path).
		CallWithContext(ctx, propertiesInterface+".Get", 0, Interface, busName(id)).
		Store(&v)
	if err != nil {
		return 0, c.mapError(conn, fmt.Sprintf("get %s", busName(id)), err)
	}
	f, ok := decode(v.Value())
	if !ok {
		return 0, fmt.Errorf("get %s: unexpected type %s: %w", busName(id), v.Signature(), remote.ErrUnavailable)
	}
	return f, nil
}

// Write sets id on the daemon, converted to the property's native type.
func (c *Client) Write(ctx context.Context, id property.ID, v float64) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}

	call := conn.Object(c.service, Path).
		CallWithContext(ctx, propertiesInterface+".Set", 0, Interface, busName(id), encode(id, v))
	if call.Err != nil {
		return c.mapError(conn, fmt.Sprintf("set %s", busName(id)), call.Err)
	}
	return nil
}

// Watch delivers property changes until ctx is cancelled, the bus connection
// closes or the daemon's bus name loses its owner.
func (c *Client) Watch(ctx context.Context, notify func(remote.Notification)) error {
	conn, err := c.connection()
	if err != nil {
		return fmt.Errorf("%w: %v", remote.ErrDisconnected, err)
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(c.service),
			dbus.WithMatchObjectPath(Path),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember(propertiesChanged),
			dbus.WithMatchArg(0, Interface),
		},
		{
			dbus.WithMatchSender(busService),
			dbus.WithMatchObjectPath(busPath),
			dbus.WithMatchInterface(busService),
			dbus.WithMatchMember(nameOwnerChanged),
			dbus.WithMatchArg(0, c.service),
		},
	}
	for i, match := range matches {
		if err := conn.AddMatchSignalContext(ctx, match...); err != nil {
			c.removeMatches(conn, matches[:i])
			c.drop(conn)
			return fmt.Errorf("%w: add match: %v", remote.ErrDisconnected, err)
		}
	}
	defer c.removeMatches(conn, matches)

	ch := make(chan *dbus.Signal, 32)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	// The daemon may have gone away between the fresh read and the match.
	var owned bool
	err = conn.BusObject().CallWithContext(ctx, busService+".NameHasOwner", 0, c.service).Store(&owned)
	if err != nil {
		return fmt.Errorf("%w: name owner: %v", remote.ErrDisconnected, err)
	}
	if !owned {
		return fmt.Errorf("%w: %s has no owner", remote.ErrDisconnected, c.service)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				c.drop(conn)
				return remote.ErrDisconnected
			}
			if owner, changed := parseOwnerChanged(sig, c.service); changed {
				if owner == "" {
					return fmt.Errorf("%w: %s exited", remote.ErrDisconnected, c.service)
				}
				return fmt.Errorf("%w: %s restarted as %s", remote.ErrDisconnected, c.service, owner)
			}
			for _, n := range parseChanged(sig) {
				notify(n)
			}
		}
	}
}

func (c *Client) removeMatches(conn *dbus.Conn, matches [][]dbus.MatchOption) {
	for _, match := range matches {
		if err := conn.RemoveMatchSignalContext(context.Background(), match...); err != nil {
			log.Debug().Err(err).Msg("Failed to remove signal match")
		}
	}
}

func (c *Client) connection() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %v: %w", err, remote.ErrUnavailable)
	}
	c.conn = conn
	log.Debug().Str("service", c.service).Msg("Session bus connection opened")
	return conn, nil
}

// drop forgets conn so the next call reconnects.
func (c *Client) drop(conn *dbus.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) mapError(conn *dbus.Conn, op string, err error) error {
	if name, ok := errorName(err); ok {
		if rejectedErrors[name] {
			return fmt.Errorf("%s: %v: %w", op, err, remote.ErrRejected)
		}
		return fmt.Errorf("%s: %v: %w", op, err, remote.ErrUnavailable)
	}
	if !conn.Connected() {
		c.drop(conn)
	}
	return fmt.Errorf("%s: %v: %w", op, err, remote.ErrUnavailable)
}

// errorName returns the name of a D-Bus error reply, by value or by pointer.
func errorName(err error) (string, bool) {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name, true
	}
	var byPointer *dbus.Error
	if errors.As(err, &byPointer) && byPointer != nil {
		return byPointer.Name, true
	}
	return "", false
}

// busName returns the D-Bus property name of id.
func busName(id property.ID) string {
	switch id {
	case property.Temperature:
		return "Temperature"
	case property.Brightness:
		return "Brightness"
	case property.Gamma:
		return "Gamma"
	case property.Inverted:
		return "Inverted"
	}
	return ""
}

func propertyByBusName(name string) (property.ID, bool) {
	for _, id := range property.All {
		if busName(id) == name {
			return id, true
		}
	}
	return 0, false
}

// encode converts v to the native type the daemon declares for id.
func encode(id property.ID, v float64) dbus.Variant {
	switch id {
	case property.Temperature:
		return dbus.MakeVariant(uint16(math.Round(property.DomainOf(id).Clamp(v))))
	case property.Inverted:
		return dbus.MakeVariant(property.Bool(v))
	default:
		return dbus.MakeVariant(v)
	}
}

func decode(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case bool:
		return property.FromBool(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case byte:
		return float64(x), true
	}
	return 0, false
}

// parseChanged extracts the complete values carried by a PropertiesChanged
// signal. Invalidated properties are ignored; the watcher's fresh read on
// reconnect covers them.
func parseChanged(sig *dbus.Signal) []remote.Notification {
	if sig == nil || sig.Name != propertiesInterface+"."+propertiesChanged || len(sig.Body) < 2 {
		return nil
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != Interface {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}
	var out []remote.Notification
	for name, v := range changed {
		id, ok := propertyByBusName(name)
		if !ok {
			continue
		}
		f, ok := decode(v.Value())
		if !ok {
			log.Warn().Str("property", id.String()).Str("signature", v.Signature().String()).
				Msg("Ignoring change notification with unexpected type")
			continue
		}
		out = append(out, remote.Notification{Property: id, Value: f})
	}
	return out
}

// parseOwnerChanged reports whether sig announces a new owner for service, and
// returns that owner. An empty owner means the name was released.
func parseOwnerChanged(sig *dbus.Signal, service string) (string, bool) {
	if sig == nil || sig.Name != busService+"."+nameOwnerChanged || len(sig.Body) < 3 {
		return "", false
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != service {
		return "", false
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, ok := sig.Body[2].(string)
	if !ok || newOwner == oldOwner {
		return "", false
	}
	return newOwner, true
}

var _ remote.Link = (*Client)(nil)
