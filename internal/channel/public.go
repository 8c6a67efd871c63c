package channel

import (
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/rs/zerolog"
)

// Public is the no-signature-required variant: any connection within
// the app may subscribe.
type Public struct {
	base
}

// NewPublic constructs a public channel named name.
func NewPublic(name string, logger zerolog.Logger) *Public {
	return &Public{base: newBase(name, logger)}
}

func (p *Public) Kind() Kind { return KindPublic }

// Subscribe just runs the shared default: save the connection and
// reply with subscription_succeeded. No auth is required.
func (p *Public) Subscribe(c *client.Client, _ *codec.Payload) error {
	return p.defaultSubscribe(c)
}
