// Package registry implements the per-app channel registry (component
// H): a map of channel-name to Channel, with a polymorphic factory
// that picks the variant from the channel-name prefix.
package registry

import (
	"strings"
	"sync"

	"github.com/fastsocket/fastsocket/internal/channel"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/rs/zerolog"
)

// Registry owns one channel map per app.
type Registry struct {
	mu     sync.RWMutex
	apps   map[string]*appChannels
	logger zerolog.Logger
}

type appChannels struct {
	mu       sync.RWMutex
	channels map[string]channel.Channel
}

// New returns an empty Registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		apps:   make(map[string]*appChannels),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Find looks up an existing channel, never creating one.
func (r *Registry) Find(appID, name string) (channel.Channel, bool) {
	ac := r.appChannelsFor(appID, false)
	if ac == nil {
		return nil, false
	}
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	ch, ok := ac.channels[name]
	return ch, ok
}

// Create constructs and registers a new channel, choosing the variant
// by name-prefix precedence: private-encrypted- > private- >
// presence- > public (spec.md §4.H, Testable Property 6). If a channel
// with that name already exists, the existing one is returned instead
// (first-writer-wins, spec.md §4.H / §5 "double-checked registration").
func (r *Registry) Create(appID, name string) channel.Channel {
	ac := r.appChannelsFor(appID, true)

	ac.mu.RLock()
	if existing, ok := ac.channels[name]; ok {
		ac.mu.RUnlock()
		return existing
	}
	ac.mu.RUnlock()

	ac.mu.Lock()
	defer ac.mu.Unlock()
	// Re-check after acquiring the write lock: another goroutine may
	// have created it while we waited.
	if existing, ok := ac.channels[name]; ok {
		return existing
	}
	ch := newChannel(name, r.logger)
	ac.channels[name] = ch
	return ch
}

// FindOrCreate is the common entry point: look up, and create on miss.
func (r *Registry) FindOrCreate(appID, name string) channel.Channel {
	if ch, ok := r.Find(appID, name); ok {
		return ch
	}
	return r.Create(appID, name)
}

// RemoveFromAllChannels removes c from every channel of its owning
// app, called on connection close (spec.md §4.J step 6).
func (r *Registry) RemoveFromAllChannels(c *client.Client) {
	ac := r.appChannelsFor(c.App.ID, false)
	if ac == nil {
		return
	}
	ac.mu.RLock()
	channels := make([]channel.Channel, 0, len(ac.channels))
	for _, ch := range ac.channels {
		channels = append(channels, ch)
	}
	ac.mu.RUnlock()

	for _, ch := range channels {
		ch.Unsubscribe(c.SocketID)
	}
}

// appChannelsFor returns the per-app channel map, creating it on
// demand when create is true.
func (r *Registry) appChannelsFor(appID string, create bool) *appChannels {
	r.mu.RLock()
	ac, ok := r.apps[appID]
	r.mu.RUnlock()
	if ok || !create {
		return ac
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ac, ok := r.apps[appID]; ok {
		return ac
	}
	ac = &appChannels{channels: make(map[string]channel.Channel)}
	r.apps[appID] = ac
	return ac
}

// newChannel is the polymorphic factory itself, matching prefixes in
// strict precedence order so "private-encrypted-foo" is never
// misclassified as private.
func newChannel(name string, logger zerolog.Logger) channel.Channel {
	switch {
	case strings.HasPrefix(name, "private-encrypted-"):
		return channel.NewEncrypted(name, logger)
	case strings.HasPrefix(name, "private-"):
		return channel.NewPrivate(name, logger)
	case strings.HasPrefix(name, "presence-"):
		return channel.NewPresence(name, logger)
	default:
		return channel.NewPublic(name, logger)
	}
}
