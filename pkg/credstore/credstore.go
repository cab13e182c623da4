// Package credstore keeps the session's Credential Set in one of two
// backends: the HTTP cookie jar shared with the identity backend, or a
// persistent local key-value store.
package credstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("credstore: not found")
	ErrReadOnlyBackend = errors.New("credstore: active backend is populated by the identity backend")
	ErrNoBackend       = errors.New("credstore: no backend configured for mode")
)

// Slot names one credential of the set.
type Slot string

const (
	SlotAccess   Slot = "access"
	SlotRefresh  Slot = "refresh"
	SlotIdentity Slot = "identity"
)

// Slots lists every slot, in a stable order.
var Slots = []Slot{SlotAccess, SlotRefresh, SlotIdentity}

// Set is the Credential Set. Empty strings are absent slots.
type Set struct {
	Access   string
	Refresh  string
	Identity string
}

// Get returns the value held in slot.
func (s Set) Get(slot Slot) string {
	switch slot {
	case SlotAccess:
		return s.Access
	case SlotRefresh:
		return s.Refresh
	case SlotIdentity:
		return s.Identity
	default:
		return ""
	}
}

// IsZero reports whether no slot is populated.
func (s Set) IsZero() bool {
	return s.Access == "" && s.Refresh == "" && s.Identity == ""
}

// Mode selects which backend is authoritative. It is chosen once, from
// configuration, when the Store is built.
type Mode int

const (
	// ModeSameOrigin: frontend and backend share an origin. The cookie jar
	// is authoritative and only the backend writes to it.
	ModeSameOrigin Mode = iota

	// ModeCrossOrigin: frontend and backend live on different origins
	// (development). Reads prefer the local store and fall back to cookies,
	// writes go to the local store.
	ModeCrossOrigin
)

func (m Mode) String() string {
	switch m {
	case ModeSameOrigin:
		return "same-origin"
	case ModeCrossOrigin:
		return "cross-origin"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "same-origin" or "cross-origin".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "same-origin", "same_origin", "production":
		return ModeSameOrigin, nil
	case "cross-origin", "cross_origin", "development":
		return ModeCrossOrigin, nil
	default:
		return 0, fmt.Errorf("credstore: unknown mode %q", s)
	}
}

// BackendKind identifies a backend for callers that need to pick a
// reconciliation strategy.
type BackendKind string

const (
	BackendCookies BackendKind = "cookies"
	BackendLocal   BackendKind = "local"
)

// DefaultKeyPrefix is shared by cookie names and local store keys.
const DefaultKeyPrefix = "auth_"

// Keys maps slots onto backend key names.
type Keys struct {
	Prefix string
}

// Name returns the cookie name / local store key for slot.
func (k Keys) Name(slot Slot) string {
	switch slot {
	case SlotAccess:
		return k.Prefix + "access_token"
	case SlotRefresh:
		return k.Prefix + "refresh_token"
	case SlotIdentity:
		return k.Prefix + "id_token"
	default:
		return k.Prefix + string(slot)
	}
}

// All returns the key of every slot.
func (k Keys) All() []string {
	out := make([]string, 0, len(Slots))
	for _, slot := range Slots {
		out = append(out, k.Name(slot))
	}
	return out
}
