// Package apperr defines the closed set of failure kinds that cross a
// component boundary in the broker. Every error the core surfaces is
// tagged with exactly one Kind so callers can decide, without string
// matching, which of the three error-handling tiers (connection-fatal,
// message-fatal, broadcast-local) applies.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category. The set is closed: no caller
// outside this package should need to compare against anything but
// these constants.
type Kind int

const (
	KindInvalidAppID Kind = iota
	KindInvalidAppKey
	KindInvalidAppSecret
	KindInvalidAppName
	KindInvalidAppHost
	KindInvalidAppPath
	KindInvalidAppCapacity
	KindInvalidMessage
	KindInvalidSignature
	KindInvalidPayload
	KindEncryptionFailure
	KindCapacityExceeded
	KindUpgradeFailed
	KindConnectionClosed
	KindSendFailed
	KindPongFailed
	KindDecodeFailed
)

var kindNames = map[Kind]string{
	KindInvalidAppID:       "invalid-app-id",
	KindInvalidAppKey:      "invalid-app-key",
	KindInvalidAppSecret:   "invalid-app-secret",
	KindInvalidAppName:     "invalid-app-name",
	KindInvalidAppHost:     "invalid-app-host",
	KindInvalidAppPath:     "invalid-app-path",
	KindInvalidAppCapacity: "invalid-app-capacity",
	KindInvalidMessage:     "invalid-message",
	KindInvalidSignature:   "invalid-signature",
	KindInvalidPayload:     "invalid-payload",
	KindEncryptionFailure:  "encryption-failure",
	KindCapacityExceeded:   "capacity-exceeded",
	KindUpgradeFailed:      "upgrade-failed",
	KindConnectionClosed:   "connection-closed",
	KindSendFailed:         "send-failed",
	KindPongFailed:         "pong-failed",
	KindDecodeFailed:       "decode-failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is the concrete error type carried across component boundaries.
// It wraps an optional cause so %w-unwrapping and errors.Is/As keep
// working for callers that only care about the underlying failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is tagged with kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, if any, and whether it was tagged.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Tier classifies which of the three error-handling tiers (spec §7) a
// Kind belongs to, so the connection runtime can decide whether to
// terminate the connection, log and continue, or just skip a subscriber.
type Tier int

const (
	TierConnectionFatal Tier = iota
	TierMessageFatal
	TierBroadcastLocal
)

func (k Kind) Tier() Tier {
	switch k {
	case KindUpgradeFailed, KindConnectionClosed, KindCapacityExceeded:
		return TierConnectionFatal
	case KindSendFailed:
		return TierBroadcastLocal
	default:
		return TierMessageFatal
	}
}
