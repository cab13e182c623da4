package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store resolves the Credential Set across the cookie jar and the local
// store according to its Mode.
type Store struct {
	mode    Mode
	keys    Keys
	cookies *CookieBackend
	local   KV
	logger  *slog.Logger
}

type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keys.Prefix = prefix }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Store. Same-origin mode needs cookies; cross-origin mode
// needs local. The other backend is optional and, when present, serves as
// a read fallback (cross-origin) and is scrubbed on removal (both modes).
func New(mode Mode, cookies *CookieBackend, local KV, opts ...Option) (*Store, error) {
	s := &Store{
		mode:    mode,
		keys:    Keys{Prefix: DefaultKeyPrefix},
		cookies: cookies,
		local:   local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch mode {
	case ModeSameOrigin:
		if cookies == nil {
			return nil, fmt.Errorf("%w: %s requires a cookie backend", ErrNoBackend, mode)
		}
	case ModeCrossOrigin:
		if local == nil {
			return nil, fmt.Errorf("%w: %s requires a local backend", ErrNoBackend, mode)
		}
	default:
		return nil, fmt.Errorf("credstore: unknown mode %d", int(mode))
	}

	return s, nil
}

func (s *Store) Mode() Mode { return s.mode }
func (s *Store) Keys() Keys { return s.keys }

// Active reports which backend is authoritative.
func (s *Store) Active() BackendKind {
	if s.mode == ModeCrossOrigin {
		return BackendLocal
	}
	return BackendCookies
}

// Writable reports whether Set can persist a Credential Set. In same-origin
// mode the backend populates the cookie jar through its own responses.
func (s *Store) Writable() bool {
	return s.mode == ModeCrossOrigin
}

// Get returns the credential held in slot, or "" when absent.
func (s *Store) Get(ctx context.Context, slot Slot) (string, error) {
	key := s.keys.Name(slot)

	if s.mode == ModeCrossOrigin {
		v, err := s.local.Get(ctx, key)
		switch {
		case err == nil && v != "":
			return v, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return "", fmt.Errorf("credstore: read %s from local store: %w", slot, err)
		}
		if s.cookies == nil {
			return "", nil
		}
	}

	v, err := s.cookies.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Snapshot reads every slot.
func (s *Store) Snapshot(ctx context.Context) (Set, error) {
	var set Set
	var err error

	if set.Access, err = s.Get(ctx, SlotAccess); err != nil {
		return Set{}, err
	}
	if set.Refresh, err = s.Get(ctx, SlotRefresh); err != nil {
		return Set{}, err
	}
	if set.Identity, err = s.Get(ctx, SlotIdentity); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Set replaces the whole Credential Set in the local store. Slots empty in
// set are removed from the local store and expired in the cookie jar, so
// the cookie fallback cannot hand back a credential from an older set.
func (s *Store) Set(ctx context.Context, set Set) error {
	if !s.Writable() {
		return ErrReadOnlyBackend
	}

	values := make(map[string]string, len(Slots))
	var empty []string
	for _, slot := range Slots {
		v := set.Get(slot)
		values[s.keys.Name(slot)] = v
		if v == "" {
			empty = append(empty, s.keys.Name(slot))
		}
	}

	if err := s.local.Put(ctx, values); err != nil {
		return fmt.Errorf("credstore: write credential set: %w", err)
	}
	if s.cookies != nil && len(empty) > 0 {
		if err := s.cookies.Delete(ctx, empty...); err != nil {
			return fmt.Errorf("credstore: expire dropped cookies: %w", err)
		}
	}

	s.logger.Debug("credential set stored", "backend", BackendLocal)
	return nil
}

// Remove deletes slots from every configured backend.
func (s *Store) Remove(ctx context.Context, slots ...Slot) error {
	if len(slots) == 0 {
		return nil
	}

	keys := make([]string, 0, len(slots))
	for _, slot := range slots {
		keys = append(keys, s.keys.Name(slot))
	}

	var errs []error
	if s.local != nil {
		if err := s.local.Delete(ctx, keys...); err != nil {
			errs = append(errs, fmt.Errorf("credstore: delete from local store: %w", err))
		}
	}
	if s.cookies != nil {
		if err := s.cookies.Delete(ctx, keys...); err != nil {
			errs = append(errs, fmt.Errorf("credstore: expire cookies: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Clear removes the whole Credential Set.
func (s *Store) Clear(ctx context.Context) error {
	return s.Remove(ctx, Slots...)
}
