package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nexusmods-stats/pkg/nexusmods"
)

// uptimePusher reports the NexusMods API health to an Uptime Kuma push
// monitor.
type uptimePusher struct {
	endpoint   *url.URL
	status     *nexusmods.StatusClient
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

func newUptimePusher(endpoint string, status *nexusmods.StatusClient, userAgent string, logger zerolog.Logger) (*uptimePusher, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return &uptimePusher{
		endpoint:   u,
		status:     status,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  userAgent,
		logger:     logger,
	}, nil
}

// kumaStatus maps a health status onto the push monitor states.
func kumaStatus(status nexusmods.HealthStatus) string {
	switch status {
	case nexusmods.HealthHealthy:
		return "up"
	case nexusmods.HealthDegraded:
		return "pending"
	default:
		return "down"
	}
}

// push checks the status page once and reports the result.
func (p *uptimePusher) push(ctx context.Context) error {
	start := time.Now()
	health := p.status.Check(ctx)
	ping := time.Since(start)

	msg := "NexusModsApi - " + string(health.Status)
	if health.Description != "" {
		msg += " (" + health.Description + ")"
	}

	target := *p.endpoint
	query := target.Query()
	query.Set("status", kumaStatus(health.Status))
	query.Set("msg", msg)
	query.Set("ping", strconv.FormatInt(ping.Milliseconds(), 10))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &pushStatusError{code: resp.StatusCode}
	}
	return nil
}

type pushStatusError struct {
	code int
}

func (e *pushStatusError) Error() string {
	return "uptime kuma push returned " + strconv.Itoa(e.code)
}

// run pushes every interval until ctx is done.
func (p *uptimePusher) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		p.logger.Warn().Dur("interval", interval).Msg("Uptime Kuma push disabled: interval must be positive")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.push(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Uptime Kuma push failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
