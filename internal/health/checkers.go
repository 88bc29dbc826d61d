// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"time"
)

// Pinger is anything that can confirm a dependency connection, e.g. the
// database pool, the Keycloak key provider or the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes a dependency via Ping with a bounded timeout.
type PingChecker struct {
	name     string
	pinger   Pinger
	timeout  time.Duration
	optional bool
}

// NewPingChecker creates a checker for a required dependency. An unhealthy
// result takes the instance out of rotation.
func NewPingChecker(name string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: pinger, timeout: 3 * time.Second}
}

// NewOptionalPingChecker creates a checker whose failure only degrades the
// status. Used for the Redis cache, which the service can run without.
func NewOptionalPingChecker(name string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: pinger, timeout: 3 * time.Second, optional: true}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.pinger.Ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{
			Status: status,
			Error:  err.Error(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "reachable",
	}
}
