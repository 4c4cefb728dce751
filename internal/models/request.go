// Package models - API request types and input validation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// BlockRequest asks the service to administratively block an identifier.
type BlockRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (r *BlockRequest) Validate() error {
	if r.DurationSeconds <= 0 {
		return errors.New("duration_seconds must be positive")
	}
	if r.DurationSeconds > int((24 * time.Hour).Seconds()) {
		return errors.New("duration_seconds cannot exceed 24 hours")
	}
	return nil
}

// Duration returns the block duration as a time.Duration.
func (r *BlockRequest) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// EndpointLimitUpdate is the JSON-facing form of an endpoint override.
// Durations cross the wire as whole seconds.
type EndpointLimitUpdate struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
}

// ConfigUpdateRequest carries a partial rate limit configuration. Nil fields
// are left unchanged; present fields replace the current value wholesale.
type ConfigUpdateRequest struct {
	Enabled        *bool                          `json:"enabled,omitempty"`
	MaxRequests    *int                           `json:"max_requests,omitempty"`
	WindowSeconds  *int                           `json:"window_seconds,omitempty"`
	BurstLimit     *int                           `json:"burst_limit,omitempty"`
	Whitelist      []string                       `json:"whitelist,omitempty"`
	EndpointLimits map[string]EndpointLimitUpdate `json:"endpoint_limits,omitempty"`
}

func (r *ConfigUpdateRequest) Validate() error {
	if r.MaxRequests != nil && *r.MaxRequests <= 0 {
		return errors.New("max_requests must be positive")
	}
	if r.WindowSeconds != nil && *r.WindowSeconds <= 0 {
		return errors.New("window_seconds must be positive")
	}
	if r.BurstLimit != nil && *r.BurstLimit <= 0 {
		return errors.New("burst_limit must be positive")
	}
	for endpoint, limit := range r.EndpointLimits {
		if endpoint == "" {
			return errors.New("endpoint limit key cannot be empty")
		}
		if limit.MaxRequests <= 0 || limit.WindowSeconds <= 0 {
			return fmt.Errorf("endpoint %s: limits must be positive", endpoint)
		}
	}
	return nil
}
