package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestMinterVerify(t *testing.T) {
	t.Parallel()

	m, err := jwtx.NewMinter("dev-1")
	require.NoError(t, err)
	require.Equal(t, "dev-1", m.KID())

	now := time.Now().UTC()

	t.Run("round trip", func(t *testing.T) {
		token, err := m.Mint(jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			Use: "refresh",
		})
		require.NoError(t, err)

		c, err := m.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "u1", c.Subject)
		require.Equal(t, "refresh", c.Use)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := m.Mint(jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}})
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := jwtx.NewMinter("dev-2")
		require.NoError(t, err)

		token, err := other.Mint(jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}})
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
}
