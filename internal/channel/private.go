package channel

import (
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/rs/zerolog"
)

// Private requires a valid HMAC signature before admitting a
// subscriber (spec.md §3, prefix "private-").
type Private struct {
	base
}

// NewPrivate constructs a private channel named name.
func NewPrivate(name string, logger zerolog.Logger) *Private {
	return &Private{base: newBase(name, logger)}
}

func (p *Private) Kind() Kind { return KindPrivate }

// Subscribe verifies the auth signature, then runs the shared default
// subscribe. An invalid signature leaves the client un-subscribed
// (spec.md scenario S2): the client stays connected, just not a member
// of this channel.
func (p *Private) Subscribe(c *client.Client, payload *codec.Payload) error {
	if err := verifySignature(c, p.name, payload); err != nil {
		return err
	}
	return p.defaultSubscribe(c)
}
