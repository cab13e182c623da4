package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Minter signs credentials with an in-process Ed25519 key. It backs the
// development backend and tests; production credentials always come from
// the real identity backend.
type Minter struct {
	kid string
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

// NewMinter generates a fresh Ed25519 keypair identified by kid.
func NewMinter(kid string) (*Minter, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate Ed25519 key: %w", err)
	}

	return &Minter{kid: kid, key: key, pub: pub}, nil
}

func (m *Minter) KID() string { return m.kid }

// Mint turns claims into a signed compact JWT.
func (m *Minter) Mint(claims Claims) (string, error) {
	if len(m.key) != ed25519.PrivateKeySize {
		return "", errors.New("jwtx: invalid Ed25519 private key size")
	}

	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = m.kid
	return t.SignedString(m.key)
}

// Verify checks the signature and time based claims of a token minted by m.
// The session client never calls this, the development backend uses it to
// authenticate bearer and refresh credentials it issued.
func (m *Minter) Verify(token string) (*Claims, error) {
	var c Claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("jwtx: unexpected alg %q", t.Method.Alg())
		}
		return m.pub, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}
	return &c, nil
}
