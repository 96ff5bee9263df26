// Package nexusmods provides the NexusMods clients served by the badge
// endpoints: cached mod info from the API, live download counts from the
// stats host and the API status page.
package nexusmods

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ModInfo is the subset of /v1/games/{domain}/mods/{id}.json used here.
type ModInfo struct {
	ModID            int64  `json:"mod_id"`
	GameID           int64  `json:"game_id"`
	DomainName       string `json:"domain_name"`
	Name             string `json:"name"`
	Summary          string `json:"summary"`
	Version          string `json:"version"`
	Author           string `json:"author"`
	UploadedBy       string `json:"uploaded_by"`
	EndorsementCount int64  `json:"endorsement_count"`
	Available        bool   `json:"available"`
	Status           string `json:"status"`
	UpdatedTimestamp int64  `json:"updated_timestamp"`
}

var errEmptyPayload = errors.New("empty payload")

// DecodeModInfo decodes an API mod payload. A JSON null is an error so that
// it is never cached as a valid mod.
func DecodeModInfo(text string) (*ModInfo, error) {
	var info *ModInfo
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return nil, fmt.Errorf("decode mod info: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("decode mod info: %w", errEmptyPayload)
	}
	return info, nil
}
