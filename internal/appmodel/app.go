// Package appmodel defines the Application record: the identity
// namespace every WebSocket connection is scoped to. Apps are loaded
// and mutated exclusively through internal/catalog; this package only
// knows how to validate and hold the fields.
package appmodel

import "github.com/fastsocket/fastsocket/internal/apperr"

// Flag is a single bit in an App's feature bitset.
type Flag uint8

const (
	FlagClientMessagesEnabled Flag = 1 << iota
	FlagStatisticsEnabled
)

// App is an identity namespace with a shared secret. All fields other
// than ConnectionCount and Flags are immutable after construction;
// ConnectionCount is mutated by the connection runtime
// (increment/decrement on open/close) through the catalog, under the
// catalog's lock, and Flags through the toggle methods below, which
// take no lock of their own.
type App struct {
	ID               string
	Key              string
	Secret           string
	Name             string
	Host             string
	Path             string
	Capacity         int
	ConnectionCount  int
	Flags            Flag
}

// New validates every string field is non-empty and capacity is
// positive, mirroring original_source/src/app.rs's per-field checks.
// ConnectionCount starts at zero.
func New(id, key, secret, name, host, path string, capacity int, flags Flag) (*App, error) {
	switch {
	case id == "":
		return nil, apperr.New(apperr.KindInvalidAppID, "app id must not be empty")
	case key == "":
		return nil, apperr.New(apperr.KindInvalidAppKey, "app key must not be empty")
	case secret == "":
		return nil, apperr.New(apperr.KindInvalidAppSecret, "app secret must not be empty")
	case name == "":
		return nil, apperr.New(apperr.KindInvalidAppName, "app name must not be empty")
	case host == "":
		return nil, apperr.New(apperr.KindInvalidAppHost, "app host must not be empty")
	case path == "":
		return nil, apperr.New(apperr.KindInvalidAppPath, "app path must not be empty")
	case capacity < 1:
		return nil, apperr.New(apperr.KindInvalidAppCapacity, "app capacity must be >= 1")
	}

	return &App{
		ID:       id,
		Key:      key,
		Secret:   secret,
		Name:     name,
		Host:     host,
		Path:     path,
		Capacity: capacity,
		Flags:    flags,
	}, nil
}

// IncrementConnectionCount bumps the live-connection gauge by one. This
// method is unconditional, matching original_source/src/app.rs: it does
// not compare the count against Capacity, and neither does the
// connection runtime, which enforces only its process-wide
// MaxConnections ceiling.
func (a *App) IncrementConnectionCount() { a.ConnectionCount++ }

// DecrementConnectionCount drops the live-connection gauge by one,
// clamping at zero: decrementing a zero gauge leaves it at zero.
func (a *App) DecrementConnectionCount() {
	if a.ConnectionCount > 0 {
		a.ConnectionCount--
	}
}

// SetClientMessagesEnabled toggles the client-messages-enabled flag.
func (a *App) SetClientMessagesEnabled(enabled bool) { a.setFlag(FlagClientMessagesEnabled, enabled) }

// ClientMessagesEnabled reports whether client events are relayed for
// this app (spec.md §4.I).
func (a *App) ClientMessagesEnabled() bool { return a.Flags&FlagClientMessagesEnabled != 0 }

// SetStatisticsEnabled toggles the statistics-enabled flag.
func (a *App) SetStatisticsEnabled(enabled bool) { a.setFlag(FlagStatisticsEnabled, enabled) }

// StatisticsEnabled reports whether per-app metrics should be emitted.
func (a *App) StatisticsEnabled() bool { return a.Flags&FlagStatisticsEnabled != 0 }

func (a *App) setFlag(flag Flag, enabled bool) {
	if enabled {
		a.Flags |= flag
	} else {
		a.Flags &^= flag
	}
}

// Clone returns a value copy of a that does not alias it. The catalog
// uses it to register its own copy of the built-in development app;
// catalog lookups return the stored record itself, not a clone.
func (a *App) Clone() *App {
	clone := *a
	return &clone
}
