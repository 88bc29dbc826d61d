// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cityops/data-api/internal/config"
	"github.com/cityops/data-api/internal/log"
)

// realmInfo is the public realm descriptor served at
// {server}/realms/{realm}. public_key is the base64 DER realm signing key.
type realmInfo struct {
	Realm     string `json:"realm"`
	PublicKey string `json:"public_key"`
}

// KeyProvider fetches and caches the realm public key. Concurrent refreshes
// are collapsed with singleflight and upstream fetches are throttled so a
// burst of 401s cannot hammer Keycloak.
type KeyProvider struct {
	client   *http.Client
	realmURL string
	ttl      time.Duration
	limiter  *rate.Limiter
	group    singleflight.Group

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// NewKeyProvider builds a provider for the configured realm.
func NewKeyProvider(cfg config.KeycloakConfig) *KeyProvider {
	base := strings.TrimRight(cfg.ServerURL, "/")
	return &KeyProvider{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		realmURL: fmt.Sprintf("%s/realms/%s", base, cfg.Realm),
		ttl:      cfg.KeyTTL,
		limiter:  rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// PublicKey returns the cached realm key, refreshing it when the TTL has
// elapsed. A stale key is served when the refresh throttle is exhausted.
func (p *KeyProvider) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	p.mu.RLock()
	key, fresh := p.key, time.Since(p.fetchedAt) < p.ttl
	p.mu.RUnlock()

	if key != nil && fresh {
		return key, nil
	}

	if !p.limiter.Allow() {
		if key != nil {
			logger := log.WithComponentFromContext(ctx, "auth")
			logger.Warn().
				Str("event", "auth.key_refresh_throttled").
				Msg("serving stale realm key")
			return key, nil
		}
		return nil, errors.New("realm key refresh throttled")
	}

	v, err, _ := p.group.Do("realm-key", func() (any, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		if key != nil {
			// Keycloak hiccup: keep serving the last known key.
			return key, nil
		}
		return nil, err
	}
	return v.(*rsa.PublicKey), nil
}

// Ping verifies the realm endpoint is reachable (readiness probe).
func (p *KeyProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.realmURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keycloak realm endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (p *KeyProvider) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.realmURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch realm info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("realm endpoint returned %d", resp.StatusCode)
	}

	var info realmInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode realm info: %w", err)
	}
	if info.PublicKey == "" {
		return nil, errors.New("realm info has no public key")
	}

	der, err := base64.StdEncoding.DecodeString(info.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode realm public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse realm public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("realm key is %T, want RSA", parsed)
	}

	p.mu.Lock()
	p.key = rsaKey
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	logger := log.WithComponentFromContext(ctx, "auth")
	logger.Info().
		Str("event", "auth.key_refreshed").
		Str("realm_url", p.realmURL).
		Msg("realm public key refreshed")

	return rsaKey, nil
}

// Verifier turns bearer tokens into principals.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// KeycloakVerifier verifies tokens against the realm public key.
type KeycloakVerifier struct {
	keys *KeyProvider
}

// NewKeycloakVerifier builds the production verifier.
func NewKeycloakVerifier(keys *KeyProvider) *KeycloakVerifier {
	return &KeycloakVerifier{keys: keys}
}

// Verify checks the token signature and claims and returns the caller.
func (v *KeycloakVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	key, err := v.keys.PublicKey(ctx)
	if err != nil {
		return Principal{}, fmt.Errorf("realm key unavailable: %w", err)
	}

	claims, err := VerifyRS256(token, key)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		Subject:  claims.Sub,
		Username: claims.PreferredUsername,
		Roles:    claims.RealmAccess.Roles,
	}, nil
}
