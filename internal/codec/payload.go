// Package codec implements the wire envelope used by every pusher:*
// control message and client event: {"event": ..., "channel": ...,
// "data": {...}}. It handles parsing (inbound frames), building
// (outbound replies) and compiling to bytes, with optional AEAD
// encryption of the data field for private-encrypted- channels.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/fastsocket/fastsocket/internal/apperr"
)

// Payload is a parsed or built envelope. Data preserves insertion order
// so a built payload serializes its fields in the order the caller
// added them (Pusher clients don't care, but golden-file tests do).
type Payload struct {
	event   string
	channel string
	keys    []string
	data    map[string]json.RawMessage
}

// Event returns the envelope's event name.
func (p *Payload) Event() string { return p.event }

// Channel returns the envelope's channel name, possibly empty.
func (p *Payload) Channel() string { return p.channel }

// Exists reports whether key is present in data.
func (p *Payload) Exists(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Len returns the number of keys in data.
func (p *Payload) Len() int { return len(p.keys) }

// IsEmpty reports whether data has no keys.
func (p *Payload) IsEmpty() bool { return len(p.keys) == 0 }

// GetDataStr returns the string value of key, or ("", false) if absent
// or not a JSON string.
func (p *Payload) GetDataStr(key string) (string, bool) {
	raw, ok := p.data[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// GetDataInt returns the int64 value of key, or (0, false) if absent or
// not a JSON number.
func (p *Payload) GetDataInt(key string) (int64, bool) {
	raw, ok := p.data[key]
	if !ok {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// GetDataBool returns the bool value of key, or (false, false) if absent
// or not a JSON boolean.
func (p *Payload) GetDataBool(key string) (bool, bool) {
	raw, ok := p.data[key]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// GetDataRaw returns the raw JSON bytes of key, or (nil, false) if
// absent, without decoding them.
func (p *Payload) GetDataRaw(key string) (json.RawMessage, bool) {
	raw, ok := p.data[key]
	return raw, ok
}

// wireEnvelope mirrors the subset of the wire JSON object we need to
// decode. data is left raw so Parse can detect the string-vs-object
// ambiguity spec.md §6 calls out.
type wireEnvelope struct {
	Event   *string         `json:"event"`
	Channel *string         `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Parse decodes raw bytes into a Payload. event is required; channel
// defaults to empty when absent; data defaults to an empty object when
// absent. data may arrive as a JSON object, or (per spec.md §6) as a
// JSON string containing an object — both shapes are accepted.
func Parse(raw []byte) (*Payload, error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidMessage, "payload is not a JSON object", err)
	}
	if w.Event == nil || *w.Event == "" {
		return nil, apperr.New(apperr.KindInvalidMessage, "event is required")
	}

	channel := ""
	if w.Channel != nil {
		channel = *w.Channel
	}

	dataObj, err := normalizeData(w.Data)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(dataObj))
	data := make(map[string]json.RawMessage, len(dataObj))
	for k, v := range dataObj {
		keys = append(keys, k)
		data[k] = v
	}

	return &Payload{event: *w.Event, channel: channel, keys: keys, data: data}, nil
}

// normalizeData accepts either a JSON object or a JSON string
// containing a JSON object, per spec.md §6: "data may be an object or,
// for some clients, a string containing a JSON object".
func normalizeData(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidMessage, "data string is not valid JSON", err)
		}
		if inner == "" {
			return map[string]json.RawMessage{}, nil
		}
		return normalizeData(json.RawMessage(inner))
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidMessage, "data is not a JSON object", err)
	}
	return obj, nil
}

// Builder accumulates fields for an outbound Payload. The zero value is
// ready to use.
type Builder struct {
	event      string
	hasEvent   bool
	channel    string
	hasChannel bool
	keys       []string
	data       map[string]json.RawMessage
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{data: map[string]json.RawMessage{}}
}

// Event sets the envelope's event name. Required at Build.
func (b *Builder) Event(event string) *Builder {
	b.event = event
	b.hasEvent = true
	return b
}

// Channel sets the envelope's channel name. Optional at Build.
func (b *Builder) Channel(channel string) *Builder {
	b.channel = channel
	b.hasChannel = true
	return b
}

// AddData inserts value (marshaled to JSON) under key, preserving
// insertion order for the first time key is seen.
func (b *Builder) AddData(key string, value any) *Builder {
	raw, err := json.Marshal(value)
	if err != nil {
		// Only reachable for values that cannot be represented in JSON
		// (channels, functions). Every caller in this codebase passes
		// plain data; store the marshal failure as null and let the
		// caller's own tests catch the mistake.
		raw = json.RawMessage("null")
	}
	return b.AddRawData(key, raw)
}

// AddRawData inserts already-encoded JSON bytes under key.
func (b *Builder) AddRawData(key string, raw json.RawMessage) *Builder {
	if b.data == nil {
		b.data = map[string]json.RawMessage{}
	}
	if _, exists := b.data[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.data[key] = raw
	return b
}

// Build validates and returns the accumulated Payload. event is
// required; channel defaults to empty; data defaults to empty.
func (b *Builder) Build() (*Payload, error) {
	if !b.hasEvent || b.event == "" {
		return nil, apperr.New(apperr.KindInvalidMessage, "event is required")
	}
	data := make(map[string]json.RawMessage, len(b.data))
	for k, v := range b.data {
		data[k] = v
	}
	keys := append([]string(nil), b.keys...)
	return &Payload{event: b.event, channel: b.channel, keys: keys, data: data}, nil
}

// Compile serializes p to the wire format, encrypting the data field
// with AES-256-GCM when key is non-empty and data has at least one
// key (private-encrypted- channels
// with a client public key bound, per spec.md §4.B/§4.G). Output key
// order is always data, channel, event.
func Compile(p *Payload, key []byte) ([]byte, error) {
	if p.event == "" {
		return nil, apperr.New(apperr.KindInvalidPayload, "event is required to compile a payload")
	}

	dataField, err := compileDataField(p, key)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"data":`)
	buf.Write(dataField)
	if p.channel != "" {
		buf.WriteString(`,"channel":`)
		channelJSON, _ := json.Marshal(p.channel)
		buf.Write(channelJSON)
	}
	buf.WriteString(`,"event":`)
	eventJSON, _ := json.Marshal(p.event)
	buf.Write(eventJSON)
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// compileDataField renders the "data" value: the plain object when
// data is empty or no key is supplied, or a base64 string of
// AES-256-GCM ciphertext when both a non-empty data set and an
// encryption key are present.
func compileDataField(p *Payload, key []byte) ([]byte, error) {
	obj := orderedDataJSON(p)

	if len(p.keys) == 0 || len(key) == 0 {
		return obj, nil
	}

	ciphertext, err := encrypt(key, obj)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEncryptionFailure, "failed to encrypt data field", err)
	}
	encoded, _ := json.Marshal(base64.StdEncoding.EncodeToString(ciphertext))
	return encoded, nil
}

// orderedDataJSON renders data as a JSON object with keys in insertion
// order, since Go's encoding/json does not preserve map order.
func orderedDataJSON(p *Payload) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(p.data[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// encrypt seals plaintext under a fresh random 12-byte nonce, prepended
// to the returned ciphertext. This replaces the source's fixed-nonce
// placeholder (spec.md §9 REDESIGN FLAG): reusing a nonce under the same
// key breaks AES-GCM's confidentiality guarantee entirely, so each call
// draws a new one from crypto/rand.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// decrypt reverses encrypt, reading the nonce from the first
// gcm.NonceSize() bytes of ciphertext. Exposed for tests and for any
// future admin tooling that needs to verify round-tripping; the broker
// itself never decrypts client payloads (it only authenticates and
// relays them).
func decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, apperr.New(apperr.KindEncryptionFailure, "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

// normalizeKey takes the raw 32 bytes of supplied key material, per
// spec.md §4.B. Keys shorter than 32 bytes are zero-padded rather than
// rejected, since the public key is delivered out of band and this
// package has no way to validate its provenance; longer keys are
// truncated to the first 32 bytes.
func normalizeKey(key []byte) []byte {
	out := make([]byte, 32)
	copy(out, key)
	return out
}

// Decrypt exposes decrypt for callers (tests, admin tools) outside this
// package that hold the raw key material and a base64 ciphertext.
func Decrypt(key []byte, base64Ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Ciphertext)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEncryptionFailure, "invalid base64 ciphertext", err)
	}
	return decrypt(key, raw)
}
