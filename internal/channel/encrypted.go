package channel

import (
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/rs/zerolog"
)

// Encrypted subscribes exactly like Private (prefix
// "private-encrypted-"); the variant only affects outbound payload
// compilation, where internal/codec.Compile encrypts the data field
// for any client with a bound public key. That encryption happens in
// internal/client.Client.Send, not here — this type exists so
// internal/registry's factory (spec.md §4.H, prefix precedence
// "private-encrypted- > private-") produces a distinct Kind from
// Private even though the subscribe logic is identical.
type Encrypted struct {
	base
}

// NewEncrypted constructs an encrypted channel named name.
func NewEncrypted(name string, logger zerolog.Logger) *Encrypted {
	return &Encrypted{base: newBase(name, logger)}
}

func (e *Encrypted) Kind() Kind { return KindEncrypted }

func (e *Encrypted) Subscribe(c *client.Client, payload *codec.Payload) error {
	if err := verifySignature(c, e.name, payload); err != nil {
		return err
	}
	return e.defaultSubscribe(c)
}
