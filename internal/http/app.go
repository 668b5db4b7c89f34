// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"growth_backend/internal/events"
	"growth_backend/platform/config"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	config.CronConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP, JWT and cron settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// PublicLimiter bounds unauthenticated endpoints per tenant and IP.
	PublicLimiter httpkit.RateLimiter
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
