package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"cubegate/internal/models"
	"cubegate/internal/ratelimit"
	"cubegate/internal/version"

	"github.com/gorilla/mux"
)

// Handlers contains HTTP handlers for the cubegate API
type Handlers struct {
	limiter ratelimit.Limiter
	config  *models.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(limiter ratelimit.Limiter, config *models.Config) *Handlers {
	return &Handlers{
		limiter: limiter,
		config:  config,
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version

	response.AddComponent("ratelimit", models.StatusHealthy, "Rate limiter is operational")
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	response.Metrics = map[string]interface{}{
		"rate_limiting_enabled": h.limiter.Config().Enabled,
		"store":                 h.config.RateLimit.Store,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetLimitStatus returns the current rate limit state for an identifier
// without counting as a request.
// GET /api/v1/limits/{identifier}?endpoint=...
func (h *Handlers) GetLimitStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	identifier := vars["identifier"]
	endpoint := r.URL.Query().Get("endpoint")

	status := h.limiter.Status(r.Context(), identifier, endpoint)

	response := &models.LimitStatusResponse{
		Identifier:       identifier,
		Endpoint:         endpoint,
		RequestsInWindow: status.RequestsInWindow,
		Limit:            status.Limit,
		Remaining:        status.Remaining,
		Blocked:          status.Blocked,
	}
	if status.Blocked {
		until := status.BlockedUntil
		response.BlockedUntil = &until
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// BlockIdentifier administratively blocks an identifier for a duration.
// POST /api/v1/limits/{identifier}/block
func (h *Handlers) BlockIdentifier(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	identifier := vars["identifier"]

	var req models.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	h.limiter.Block(r.Context(), identifier, req.Duration())

	slog.Info("identifier blocked",
		"identifier", identifier,
		"duration", req.Duration().String(),
		"request_id", GetRequestID(r))

	response := &models.BlockResponse{
		Identifier:   identifier,
		BlockedUntil: time.Now().Add(req.Duration()),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ResetIdentifier removes all rate limit state for an identifier.
// DELETE /api/v1/limits/{identifier}
func (h *Handlers) ResetIdentifier(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	identifier := vars["identifier"]

	h.limiter.Reset(r.Context(), identifier)

	slog.Info("identifier reset",
		"identifier", identifier,
		"request_id", GetRequestID(r))

	w.WriteHeader(http.StatusNoContent)
}

// GetConfig returns the live rate limit policy.
// GET /api/v1/limits/config
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, configResponse(h.limiter.Config()))
}

// UpdateConfig merges a partial policy update into the live configuration.
// PUT /api/v1/limits/config
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	patch := ratelimit.ConfigPatch{
		Enabled:     req.Enabled,
		MaxRequests: req.MaxRequests,
		BurstLimit:  req.BurstLimit,
		Whitelist:   req.Whitelist,
	}
	if req.WindowSeconds != nil {
		window := time.Duration(*req.WindowSeconds) * time.Second
		patch.Window = &window
	}
	if req.EndpointLimits != nil {
		patch.EndpointLimits = make(map[string]ratelimit.EndpointLimit, len(req.EndpointLimits))
		for endpoint, limit := range req.EndpointLimits {
			patch.EndpointLimits[endpoint] = ratelimit.EndpointLimit{
				MaxRequests: limit.MaxRequests,
				Window:      time.Duration(limit.WindowSeconds) * time.Second,
			}
		}
	}

	h.limiter.SetConfig(patch)

	slog.Info("rate limit configuration updated", "request_id", GetRequestID(r))

	h.writeJSONResponse(w, http.StatusOK, configResponse(h.limiter.Config()))
}

// configResponse converts the internal policy into its wire form.
func configResponse(cfg ratelimit.Config) *models.ConfigResponse {
	response := &models.ConfigResponse{
		Enabled:        cfg.Enabled,
		MaxRequests:    cfg.MaxRequests,
		WindowSeconds:  int(cfg.Window.Seconds()),
		BurstLimit:     cfg.BurstLimit,
		Whitelist:      cfg.Whitelist,
		EndpointLimits: make(map[string]models.EndpointLimitUpdate, len(cfg.EndpointLimits)),
	}
	for endpoint, limit := range cfg.EndpointLimits {
		response.EndpointLimits[endpoint] = models.EndpointLimitUpdate{
			MaxRequests:   limit.MaxRequests,
			WindowSeconds: int(limit.Window.Seconds()),
		}
	}
	return response
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send.
		slog.Error("error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}
