// SPDX-License-Identifier: MIT

// Package auth verifies Keycloak-issued RS256 bearer tokens and evaluates
// realm-role authorization.
package auth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Error classifications for strict HTTP 401/403 mapping.
var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenMalformed = errors.New("token malformed")
	ErrInvalidAlg     = errors.New("invalid algorithm: must be RS256")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrMissingExp     = errors.New("missing exp claim")
	ErrMissingRole    = errors.New("missing one or more required roles")
)

// RealmAccess carries the realm-level roles Keycloak embeds in the token.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// TokenClaims is the subset of Keycloak access-token claims the service
// inspects. Audience and iat are intentionally not verified; exp is
// mandatory.
type TokenClaims struct {
	Iss               string      `json:"iss"`
	Sub               string      `json:"sub"`
	Exp               int64       `json:"exp"`
	Iat               int64       `json:"iat"`
	PreferredUsername string      `json:"preferred_username"`
	RealmAccess       RealmAccess `json:"realm_access"`
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// VerifyRS256 verifies a Keycloak RS256 JWT against the realm public key.
func VerifyRS256(token string, key *rsa.PublicKey) (*TokenClaims, error) {
	return VerifyRS256At(token, key, time.Now().Unix())
}

// VerifyRS256At is like VerifyRS256 but takes a custom 'now' timestamp for
// deterministic testing.
func VerifyRS256At(token string, key *rsa.PublicKey, now int64) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenMalformed
	}

	// Signature first, before trusting any header or claim content.
	payload := parts[0] + "." + parts[1]
	digest := sha256.Sum256([]byte(payload))

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidSig
	}
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return nil, ErrInvalidSig
	}

	hJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var header jwtHeader
	if err := json.Unmarshal(hJSON, &header); err != nil {
		return nil, ErrTokenMalformed
	}
	// "alg=none" and HMAC downgrades are rejected here.
	if header.Alg != "RS256" {
		return nil, ErrInvalidAlg
	}

	cJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var claims TokenClaims
	if err := json.Unmarshal(cJSON, &claims); err != nil {
		return nil, ErrTokenMalformed
	}

	if claims.Exp == 0 {
		return nil, ErrMissingExp
	}
	if now >= claims.Exp {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}
