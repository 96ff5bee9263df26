package nexusmods

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Sternrassler/nexusmods-stats/pkg/client"
	"github.com/Sternrassler/nexusmods-stats/pkg/coordinator"
)

// DefaultAPIBaseURL is the NexusMods public API.
const DefaultAPIBaseURL = "https://api.nexusmods.com/"

// APIClient reads mod info through the fetch coordinator.
type APIClient struct {
	coord  *coordinator.Coordinator
	apiKey string
}

// NewAPIClient creates an API client. A missing API key is a configuration
// error and is reported as client.ErrMissingCredential.
func NewAPIClient(coord *coordinator.Coordinator, apiKey string) (*APIClient, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if apiKey == "" {
		return nil, client.ErrMissingCredential
	}
	return &APIClient{coord: coord, apiKey: apiKey}, nil
}

// ModPath returns the API path of a mod.
func ModPath(gameDomain, modID string) string {
	return fmt.Sprintf("/v1/games/%s/mods/%s.json", url.PathEscape(gameDomain), url.PathEscape(modID))
}

// GetMod returns the mod, served from cache when possible. The result is
// false when the mod is unknown or NexusMods is unavailable and nothing was
// cached before.
func (c *APIClient) GetMod(ctx context.Context, gameDomain, modID string) (*ModInfo, bool) {
	if gameDomain == "" || modID == "" {
		return nil, false
	}
	return coordinator.GetOrFetch(ctx, c.coord, ModPath(gameDomain, modID), c.apiKey, DecodeModInfo)
}
