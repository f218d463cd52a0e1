package config

import (
	"context"
	"strconv"
	"time"

	"trackback/pkg/store"
)

// Provider gives access to the settings that may change while running.
// Values set through the state store win over the file configuration.
type Provider interface {
	// Recorder
	InitialThreshold(ctx context.Context) float64
	GrowthFactor(ctx context.Context) float64

	// Return
	AcceptanceRadius(ctx context.Context) float64
	ReturnClearance(ctx context.Context) float64
	ReturnFloor(ctx context.Context) float64
	AutoReturnAfter(ctx context.Context) time.Duration

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) InitialThreshold(ctx context.Context) float64 {
	return p.getPositive(ctx, KeyInitialThreshold, p.base.Path.InitialThreshold)
}

func (p *UnifiedProvider) GrowthFactor(ctx context.Context) float64 {
	v := p.getFloat64(ctx, KeyGrowthFactor, p.base.Path.GrowthFactor)
	if v <= 1 {
		return p.base.Path.GrowthFactor
	}
	return v
}

func (p *UnifiedProvider) AcceptanceRadius(ctx context.Context) float64 {
	return p.getPositive(ctx, KeyAcceptanceRadius, p.base.Return.AcceptanceRadius.Meters())
}

func (p *UnifiedProvider) ReturnClearance(ctx context.Context) float64 {
	return p.getNonNegative(ctx, KeyReturnClearance, p.base.Return.Clearance.Meters())
}

func (p *UnifiedProvider) ReturnFloor(ctx context.Context) float64 {
	return p.getNonNegative(ctx, KeyReturnFloor, p.base.Return.Floor.Meters())
}

func (p *UnifiedProvider) AutoReturnAfter(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyAutoReturnAfter, p.base.Return.AutoAfter.Std())
}

// --- Helpers ---

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getPositive(ctx context.Context, key string, fallback float64) float64 {
	if v := p.getFloat64(ctx, key, fallback); v > 0 {
		return v
	}
	return fallback
}

func (p *UnifiedProvider) getNonNegative(ctx context.Context, key string, fallback float64) float64 {
	if v := p.getFloat64(ctx, key, fallback); v >= 0 {
		return v
	}
	return fallback
}

func (p *UnifiedProvider) getDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if dur, err := ParseDuration(val); err == nil && dur >= 0 {
				return dur
			}
		}
	}
	return fallback
}
