package moderation

import (
	"fmt"
	"net/http"

	"moments/internal/config"
	"moments/internal/moments"
)

// NewGateFromConfig creates a ModerationGate based on the config type.
func NewGateFromConfig(cfg config.ModerationConfig, client *http.Client) (moments.ModerationGate, error) {
	switch cfg.Type {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http moderation requires endpoint to be set")
		}
		return NewHTTPGate(cfg.Endpoint, cfg.APIKey, client), nil
	case "allow":
		return AllowGate{}, nil
	default:
		return nil, fmt.Errorf("unknown moderation type: %s", cfg.Type)
	}
}
