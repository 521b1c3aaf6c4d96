package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneModeAdmitsEveryone(t *testing.T) {
	v := NewVerifier("", "")
	assert.False(t, v.Enabled())
	p, err := v.FromHeader("")
	require.NoError(t, err)
	assert.True(t, p.Has(RoleDispatcher))
}

func TestDevMode(t *testing.T) {
	v := NewVerifier("dev", "")
	p, err := v.FromHeader("Bearer alice:Dispatcher")
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "alice", Role: RoleDispatcher}, p)
	assert.True(t, p.Has(RoleDispatcher, RoleAdmin))
	assert.False(t, p.Has(RoleDriver))

	_, err = v.FromHeader("")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = v.FromHeader("Bearer nocolon")
	assert.Error(t, err)
}

func TestHMACMode(t *testing.T) {
	v := NewVerifier("hmac", "s3cret")
	v.now = func() time.Time { return time.Unix(1_000, 0) }

	tok, err := SignHS256("s3cret", map[string]any{"sub": "drv-9", "role": "driver", "exp": 2_000})
	require.NoError(t, err)
	p, err := v.FromHeader("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "drv-9", Role: RoleDriver}, p)

	forged, err := SignHS256("other", map[string]any{"sub": "x", "role": "admin"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.Error(t, err)

	expired, err := SignHS256("s3cret", map[string]any{"sub": "x", "role": "admin", "exp": 500})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	noRole, err := SignHS256("s3cret", map[string]any{"sub": "x"})
	require.NoError(t, err)
	_, err = v.Verify(noRole)
	assert.Error(t, err)

	_, err = v.Verify("not.a.jwt!")
	assert.Error(t, err)
}
