package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"trackback/pkg/config"
	"trackback/pkg/store"
)

// ConfigHandler exposes the runtime tunables. Values are written to the
// state store, which the provider reads ahead of the file configuration.
type ConfigHandler struct {
	store   store.StateStore
	cfgProv config.Provider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(st store.StateStore, cfg config.Provider) *ConfigHandler {
	return &ConfigHandler{
		store:   st,
		cfgProv: cfg,
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	SimSource        string  `json:"sim_source"`
	Capacity         int     `json:"capacity"`
	InitialThreshold float64 `json:"initial_threshold"`
	GrowthFactor     float64 `json:"growth_factor"`
	AcceptanceRadius float64 `json:"acceptance_radius"`
	ReturnClearance  float64 `json:"return_clearance"`
	ReturnFloor      float64 `json:"return_floor"`
	AutoReturnAfter  string  `json:"auto_return_after"`
}

// ConfigRequest represents the config API request for updates. Missing
// fields are left alone.
type ConfigRequest struct {
	InitialThreshold *float64 `json:"initial_threshold,omitempty"`
	GrowthFactor     *float64 `json:"growth_factor,omitempty"`
	AcceptanceRadius *float64 `json:"acceptance_radius,omitempty"`
	ReturnClearance  *float64 `json:"return_clearance,omitempty"`
	ReturnFloor      *float64 `json:"return_floor,omitempty"`
	AutoReturnAfter  *string  `json:"auto_return_after,omitempty"`
}

var errInvalidValue = errors.New("invalid value")

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	case http.MethodDelete:
		h.HandleResetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the effective configuration.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	resp := h.getConfigResponse(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode config response", "error", err)
	}
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	appCfg := h.cfgProv.AppConfig()
	return ConfigResponse{
		SimSource:        appCfg.Sim.Provider,
		Capacity:         appCfg.Path.Capacity,
		InitialThreshold: h.cfgProv.InitialThreshold(ctx),
		GrowthFactor:     h.cfgProv.GrowthFactor(ctx),
		AcceptanceRadius: h.cfgProv.AcceptanceRadius(ctx),
		ReturnClearance:  h.cfgProv.ReturnClearance(ctx),
		ReturnFloor:      h.cfgProv.ReturnFloor(ctx),
		AutoReturnAfter:  h.cfgProv.AutoReturnAfter(ctx).String(),
	}
}

// HandleSetConfig validates and stores the requested overrides. Nothing is
// written when any value is invalid.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updates, err := req.updates()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for key, val := range updates {
		if err := h.store.SetState(ctx, key, val); err != nil {
			slog.Error("Failed to save state", "key", key, "error", err)
			http.Error(w, "Failed to save config", http.StatusInternalServerError)
			return
		}
		slog.Debug("Config updated", key, val)
	}

	h.HandleGetConfig(w, r)
}

// HandleResetConfig drops all overrides, restoring the file configuration.
func (h *ConfigHandler) HandleResetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, key := range config.RuntimeKeys {
		if err := h.store.DeleteState(ctx, key); err != nil {
			slog.Error("Failed to delete state", "key", key, "error", err)
		}
	}
	h.HandleGetConfig(w, r)
}

// updates converts the request into state store values.
func (req *ConfigRequest) updates() (map[string]string, error) {
	out := make(map[string]string)

	positive := func(key string, v *float64) error {
		if v == nil {
			return nil
		}
		if *v <= 0 {
			return fmt.Errorf("%w: %s must be positive", errInvalidValue, key)
		}
		out[key] = formatFloat(*v)
		return nil
	}
	nonNegative := func(key string, v *float64) error {
		if v == nil {
			return nil
		}
		if *v < 0 {
			return fmt.Errorf("%w: %s must not be negative", errInvalidValue, key)
		}
		out[key] = formatFloat(*v)
		return nil
	}

	if err := positive(config.KeyInitialThreshold, req.InitialThreshold); err != nil {
		return nil, err
	}
	if req.GrowthFactor != nil {
		if *req.GrowthFactor <= 1 {
			return nil, fmt.Errorf("%w: %s must be greater than 1", errInvalidValue, config.KeyGrowthFactor)
		}
		out[config.KeyGrowthFactor] = formatFloat(*req.GrowthFactor)
	}
	if err := positive(config.KeyAcceptanceRadius, req.AcceptanceRadius); err != nil {
		return nil, err
	}
	if err := nonNegative(config.KeyReturnClearance, req.ReturnClearance); err != nil {
		return nil, err
	}
	if err := nonNegative(config.KeyReturnFloor, req.ReturnFloor); err != nil {
		return nil, err
	}
	if req.AutoReturnAfter != nil {
		d, err := config.ParseDuration(*req.AutoReturnAfter)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: %s %q", errInvalidValue, config.KeyAutoReturnAfter, *req.AutoReturnAfter)
		}
		out[config.KeyAutoReturnAfter] = *req.AutoReturnAfter
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
