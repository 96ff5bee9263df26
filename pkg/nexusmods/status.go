package nexusmods

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/nexusmods-stats/pkg/client"
)

// DefaultStatusBaseURL is the NexusMods status page.
const DefaultStatusBaseURL = "https://nexusmods.statuspage.io/"

const statusComponentsPath = "api/v2/components.json"

var statusUnavailable = Health{Status: HealthUnhealthy, Description: "NexusMods API Status not available"}

// HealthStatus is the state reported by StatusClient.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the API component state from the status page.
type Health struct {
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
}

type statusComponent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type statusComponents struct {
	Components []statusComponent `json:"components"`
}

// StatusClient checks the "API" component of the NexusMods status page.
type StatusClient struct {
	fetcher client.Fetcher
}

// NewStatusClient creates a status client on a fetcher for DefaultStatusBaseURL.
func NewStatusClient(fetcher client.Fetcher) *StatusClient {
	return &StatusClient{fetcher: fetcher}
}

// Check reports the API component state. An unreachable or unreadable
// status page is unhealthy.
func (c *StatusClient) Check(ctx context.Context) Health {
	resp, err := c.fetcher.Get(ctx, statusComponentsPath, nil)
	if err != nil {
		return statusUnavailable
	}
	if !resp.IsSuccess() {
		resp.Close()
		return statusUnavailable
	}

	text, err := resp.Text()
	if err != nil {
		return statusUnavailable
	}

	var components statusComponents
	if err := json.Unmarshal([]byte(text), &components); err != nil {
		return statusUnavailable
	}

	for _, component := range components.Components {
		if component.Name != "API" {
			continue
		}
		if component.Status != "operational" {
			return Health{Status: HealthDegraded, Description: fmt.Sprintf("NexusMods API Status is %s", component.Status)}
		}
		return Health{Status: HealthHealthy}
	}
	return statusUnavailable
}
