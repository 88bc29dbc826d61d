// SPDX-License-Identifier: MIT

package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// mintToken signs header/claims with the given key, mimicking a Keycloak
// access token.
func mintToken(t *testing.T, key *rsa.PrivateKey, alg string, claims TokenClaims) string {
	t.Helper()

	hJSON, err := json.Marshal(map[string]string{"alg": alg, "typ": "JWT"})
	require.NoError(t, err)
	cJSON, err := json.Marshal(claims)
	require.NoError(t, err)

	payload := base64.RawURLEncoding.EncodeToString(hJSON) + "." + base64.RawURLEncoding.EncodeToString(cJSON)
	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	return payload + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func validClaims(now int64) TokenClaims {
	return TokenClaims{
		Iss:               "http://localhost:8081/realms/data-api",
		Sub:               "2df3a1f9-b8f2-4f1e-9a44-04c5e61f1d10",
		Exp:               now + 300,
		Iat:               now,
		PreferredUsername: "field-operator",
		RealmAccess:       RealmAccess{Roles: []string{"user_role"}},
	}
}

func TestVerifyRS256Valid(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()
	token := mintToken(t, key, "RS256", validClaims(now))

	claims, err := VerifyRS256At(token, &key.PublicKey, now)
	require.NoError(t, err)
	assert.Equal(t, "field-operator", claims.PreferredUsername)
	assert.Equal(t, []string{"user_role"}, claims.RealmAccess.Roles)
}

func TestVerifyRS256Expired(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()
	claims := validClaims(now)
	claims.Exp = now - 10
	token := mintToken(t, key, "RS256", claims)

	_, err := VerifyRS256At(token, &key.PublicKey, now)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRS256MissingExp(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()
	claims := validClaims(now)
	claims.Exp = 0
	token := mintToken(t, key, "RS256", claims)

	_, err := VerifyRS256At(token, &key.PublicKey, now)
	assert.ErrorIs(t, err, ErrMissingExp)
}

func TestVerifyRS256WrongKey(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	now := time.Now().Unix()
	token := mintToken(t, key, "RS256", validClaims(now))

	_, err := VerifyRS256At(token, &other.PublicKey, now)
	assert.ErrorIs(t, err, ErrInvalidSig)
}

func TestVerifyRS256AlgRejected(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()

	// Token signed correctly but advertising a different algorithm: the
	// signature check passes, the header check must still reject it.
	token := mintToken(t, key, "none", validClaims(now))
	_, err := VerifyRS256At(token, &key.PublicKey, now)
	assert.ErrorIs(t, err, ErrInvalidAlg)

	token = mintToken(t, key, "HS256", validClaims(now))
	_, err = VerifyRS256At(token, &key.PublicKey, now)
	assert.ErrorIs(t, err, ErrInvalidAlg)
}

func TestVerifyRS256Malformed(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()

	for _, token := range []string{"", "a.b", "a.b.c.d", "!!.??.##"} {
		_, err := VerifyRS256At(token, &key.PublicKey, now)
		assert.Error(t, err, "token %q must be rejected", token)
	}
}

func TestVerifyRS256TamperedPayload(t *testing.T) {
	key := newTestKey(t)
	now := time.Now().Unix()
	token := mintToken(t, key, "RS256", validClaims(now))

	// swap a character inside the claims segment
	tampered := []byte(token)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, err := VerifyRS256At(string(tampered), &key.PublicKey, now)
	assert.Error(t, err)
}

func TestPrincipalHasRoles(t *testing.T) {
	p := Principal{Roles: []string{"user_role", "viewer"}}

	assert.True(t, p.HasRoles())
	assert.True(t, p.HasRoles("user_role"))
	assert.True(t, p.HasRoles("user_role", "viewer"))
	assert.False(t, p.HasRoles("admin_role"))
	assert.False(t, p.HasRoles("user_role", "admin_role"), "all required roles must be present")
}
