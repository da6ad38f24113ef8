package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundtrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	require.NotNil(t, v)

	token, err := v.Mint("alice", true, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
	assert.Equal(t, "alice", claims.Subject)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenVerifier("one").Mint("alice", true, time.Minute)
	require.NoError(t, err)

	_, err = NewTokenVerifier("two").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewTokenVerifier("secret")
	token, err := v.Mint("alice", false, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNonHMAC(t *testing.T) {
	// alg=none tokens must never pass.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySecretDisablesVerification(t *testing.T) {
	assert.Nil(t, NewTokenVerifier(""))
}
