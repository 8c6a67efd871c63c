package channel

import (
	"encoding/json"
	"sync"

	"github.com/fastsocket/fastsocket/internal/apperr"
	"github.com/fastsocket/fastsocket/internal/client"
	"github.com/fastsocket/fastsocket/internal/codec"
	"github.com/rs/zerolog"
)

// Presence additionally tracks per-subscriber user identity/metadata
// (channel_data: socket_id -> {user_id, user_info}) and gossips
// member_added/member_removed to the rest of the channel (spec.md §3,
// prefix "presence-").
type Presence struct {
	base
	dataMu      sync.RWMutex
	channelData map[string]memberJSON
}

// NewPresence constructs a presence channel named name.
func NewPresence(name string, logger zerolog.Logger) *Presence {
	return &Presence{
		base:        newBase(name, logger),
		channelData: make(map[string]memberJSON),
	}
}

func (p *Presence) Kind() Kind { return KindPresence }

// Subscribe verifies the signature, parses data.channel_data as a JSON
// object carrying at least user_id, saves the connection, replies with
// subscription_succeeded (embedding the full current member list so
// the new subscriber sees everyone already present), and then
// broadcasts member_added to the others.
//
// The reply is sent before the broadcast lock on other channels is
// even touched, and member_added is only sent to the *other* members:
// this ordering (reply-before-broadcast) is required by spec.md §5 so
// a member never sees its own join announced to itself.
func (p *Presence) Subscribe(c *client.Client, payload *codec.Payload) error {
	if err := verifySignature(c, p.name, payload); err != nil {
		return err
	}

	raw, ok := payload.GetDataStr("channel_data")
	if !ok {
		return apperr.New(apperr.KindInvalidMessage, "presence subscribe requires data.channel_data")
	}

	var member memberJSON
	if err := json.Unmarshal([]byte(raw), &member); err != nil {
		return apperr.Wrap(apperr.KindInvalidMessage, "channel_data is not a valid JSON object", err)
	}
	if len(member.UserID) == 0 {
		return apperr.New(apperr.KindInvalidMessage, "channel_data.user_id is required")
	}

	p.SaveConnection(c)

	p.dataMu.Lock()
	p.channelData[c.SocketID] = member
	p.dataMu.Unlock()

	reply, err := codec.NewBuilder().
		Event("pusher_internal:subscription_succeeded").
		Channel(p.name).
		AddRawData("presence", p.presenceSummary()).
		Build()
	if err != nil {
		return err
	}
	if err := c.Send(reply); err != nil {
		return err
	}

	memberBuilder := codec.NewBuilder().
		Event("pusher_internal:member_added").
		Channel(p.name).
		AddRawData("user_id", member.UserID)
	if len(member.UserInfo) > 0 {
		memberBuilder.AddRawData("user_info", member.UserInfo)
	}
	memberEvent, err := memberBuilder.Build()
	if err != nil {
		return err
	}
	p.BroadcastToOthers(c, memberEvent)
	return nil
}

// Unsubscribe removes socketID from both the subscriber table and the
// channel_data map, then announces member_removed to the remaining
// members (spec.md §4.G, §9 open question resolved in favor of always
// emitting it).
func (p *Presence) Unsubscribe(socketID string) {
	p.dataMu.Lock()
	member, had := p.channelData[socketID]
	delete(p.channelData, socketID)
	p.dataMu.Unlock()

	p.base.Unsubscribe(socketID)

	if !had {
		return
	}

	event, err := codec.NewBuilder().
		Event("pusher_internal:member_removed").
		Channel(p.name).
		AddRawData("user_id", member.UserID).
		Build()
	if err != nil {
		return
	}
	p.BroadcastToEveryoneExcept(socketID, event)
}

// presenceSummary renders {ids, hash, count} for the subscribing
// client's subscription_succeeded reply.
func (p *Presence) presenceSummary() json.RawMessage {
	p.dataMu.RLock()
	defer p.dataMu.RUnlock()

	ids := make([]json.RawMessage, 0, len(p.channelData))
	hash := make(map[string]json.RawMessage, len(p.channelData))
	for _, m := range p.channelData {
		ids = append(ids, m.UserID)
		hash[string(trimQuotes(m.UserID))] = m.UserInfo
	}

	out := struct {
		IDs   []json.RawMessage          `json:"ids"`
		Hash  map[string]json.RawMessage `json:"hash"`
		Count int                        `json:"count"`
	}{IDs: ids, Hash: hash, Count: len(p.channelData)}

	raw, _ := json.Marshal(out)
	return raw
}

// trimQuotes strips a leading/trailing `"` from a JSON-encoded string
// so a string user_id can be used as a bare map key in the hash
// object. Non-string user_ids (numbers) are left as-is.
func trimQuotes(raw json.RawMessage) []byte {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}
