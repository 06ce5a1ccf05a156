// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package gate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for authentication attempts.
var (
	// authDuration tracks the latency of Authenticate() calls.
	authDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatekeeper_authenticate_duration_seconds",
		Help:    "Histogram of authentication latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// authAttempts counts authentication attempts by outcome.
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_auth_attempts_total",
		Help: "Total number of authentication attempts",
	}, []string{"outcome"})

	// trustVerifications counts trust-token verifications by outcome.
	trustVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_trust_verifications_total",
		Help: "Total number of trust token verifications",
	}, []string{"outcome"})
)

// Outcome labels for authAttempts.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeInactive           = "inactive"
	outcomeRestricted         = "restricted"
	outcomeError              = "error"
)

// recordAttempt records one authentication attempt.
func recordAttempt(outcome string, started time.Time) {
	authDuration.Observe(time.Since(started).Seconds())
	authAttempts.WithLabelValues(outcome).Inc()
}
