// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Rich error information with codes for machine handling
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// LimitStatusResponse is the read-only view of a single identifier's rate
// limit state, optionally scoped to one endpoint.
type LimitStatusResponse struct {
	Identifier       string     `json:"identifier"`
	Endpoint         string     `json:"endpoint,omitempty"`
	RequestsInWindow int        `json:"requests_in_window"`
	Limit            int        `json:"limit"`
	Remaining        int        `json:"remaining"`
	Blocked          bool       `json:"blocked"`
	BlockedUntil     *time.Time `json:"blocked_until,omitempty"`
}

// RateLimitExceededResponse is the 429 body returned when a request is denied.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"` // whole seconds until the caller may retry
}

// BlockResponse confirms an administrative block.
type BlockResponse struct {
	Identifier   string    `json:"identifier"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// ConfigResponse is the JSON-facing view of the live rate limit policy.
// Durations cross the wire as whole seconds, mirroring ConfigUpdateRequest.
type ConfigResponse struct {
	Enabled        bool                           `json:"enabled"`
	MaxRequests    int                            `json:"max_requests"`
	WindowSeconds  int                            `json:"window_seconds"`
	BurstLimit     int                            `json:"burst_limit"`
	Whitelist      []string                       `json:"whitelist"`
	EndpointLimits map[string]EndpointLimitUpdate `json:"endpoint_limits"`
}

// HealthCheckResponse reports service liveness and component status.
type HealthCheckResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version,omitempty"`
	Components map[string]Component   `json:"components,omitempty"`
	Metrics    map[string]interface{} `json:"metrics,omitempty"`
}

type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the standard error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest        = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeValidation        = "VALIDATION_ERROR"    // 422: Input validation failed
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized      = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeForbidden         = "FORBIDDEN"           // 403: Permission denied
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429: Too many requests
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]Component),
	}
}

// AddComponent records the health of a single subsystem.
func (r *HealthCheckResponse) AddComponent(name, status, message string) {
	if r.Components == nil {
		r.Components = make(map[string]Component)
	}
	r.Components[name] = Component{Status: status, Message: message}
}
