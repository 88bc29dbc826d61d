// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for fatal misconfiguration. Called once
// at startup so the daemon fails fast instead of limping.
func (c Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid DATA_API_ENV %q (want development, testing or production)", c.Env))
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}

	if c.Database.DSN == "" {
		if c.Database.User == "" || c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database credentials incomplete: set DATA_API_DB_DSN or DB_USER_%s/DB_NAME_%s", envSuffix(c.Env), envSuffix(c.Env)))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid database port %d", c.Database.Port))
		}
	}

	if !c.Keycloak.Disabled {
		if c.Keycloak.ServerURL == "" || c.Keycloak.Realm == "" {
			errs = append(errs, errors.New("keycloak not configured: set KC_SERVER_URL and KC_REALM, or DATA_API_AUTH_DISABLED=true"))
		} else if _, err := url.Parse(c.Keycloak.ServerURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid KC_SERVER_URL: %w", err))
		}
	}
	if c.Keycloak.Disabled && c.Env == EnvProduction {
		errs = append(errs, errors.New("DATA_API_AUTH_DISABLED is not permitted in production"))
	}

	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate limit must be positive, got %d", c.RateLimitRequests))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}

	if _, err := c.DisplayLocation(); err != nil {
		errs = append(errs, err)
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			errs = append(errs, errors.New("tracing enabled but DATA_API_TRACING_ENDPOINT is empty"))
		}
		switch c.Tracing.ExporterType {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("unsupported tracing exporter %q (supported: grpc, http)", c.Tracing.ExporterType))
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("tracing sampling rate %v out of range [0,1]", c.Tracing.SamplingRate))
		}
	}

	return errors.Join(errs...)
}
