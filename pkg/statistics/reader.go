// Package statistics streams the NexusMods live download counts feed.
//
// The feed is a headerless CSV with one row per mod:
//
//	mod_id,total_downloads,unique_downloads,total_views
//
// Records are decoded lazily while the caller ranges over the sequence, so
// the body is never held in memory as a whole. Pulls for the same source key
// are serialized, but only until the response headers arrive: a slow
// consumer does not block other callers.
package statistics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/nexusmods-stats/pkg/client"
	"github.com/Sternrassler/nexusmods-stats/pkg/lock"
)

const (
	// DefaultPathTemplate locates the feed of one game on the stats host.
	DefaultPathTemplate = "live_download_counts/mods/{sourceKey}.csv"

	// DefaultAccept is sent upstream with every pull.
	DefaultAccept = "text/csv"

	sourceKeyPlaceholder = "{sourceKey}"
	columns              = 4
)

var (
	statsPullsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_stats_pulls_total",
		Help: "Live statistics pulls by result",
	}, []string{"result"}) // "ok", "status", "transport", "canceled"

	statsRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexusmods_stats_records_total",
		Help: "Live statistics records decoded",
	})

	statsDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexusmods_stats_decode_errors_total",
		Help: "Live statistics feeds terminated by a malformed row",
	})
)

// LiveStatisticsEntry is one row of the feed.
type LiveStatisticsEntry struct {
	ID              string `json:"id"`
	TotalDownloads  int64  `json:"total_downloads"`
	UniqueDownloads int64  `json:"unique_downloads"`
	TotalViews      int64  `json:"total_views"`
}

// DecodeError reports a malformed row. Line is 1-based; Column is the
// 0-based field index of the offending value.
type DecodeError struct {
	Line   int
	Column int
	Value  string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("live statistics line %d, column %d (%q): %v", e.Line, e.Column, e.Value, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	errMissingColumn    = errors.New("missing column")
	errNegativeCounter  = errors.New("negative counter")
	errMissingSourceKey = errors.New("source key is required")
)

// Config holds the reader configuration.
type Config struct {
	// Fetcher for the stats host (REQUIRED)
	Fetcher client.Fetcher

	// Locker serializes pulls per source key (default: lock.NewRegistry("statistics"))
	Locker lock.Locker

	// PathTemplate with a {sourceKey} placeholder (default: DefaultPathTemplate)
	PathTemplate string

	// Accept header (default: "text/csv")
	Accept string

	// Logger (default: component logger "statistics")
	Logger *zerolog.Logger
}

// Reader pulls the live statistics feed.
type Reader struct {
	fetcher      client.Fetcher
	locker       lock.Locker
	pathTemplate string
	accept       string
	logger       zerolog.Logger
}

// NewReader creates a reader.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewRegistry("statistics")
	}
	if cfg.PathTemplate == "" {
		cfg.PathTemplate = DefaultPathTemplate
	}
	if !strings.Contains(cfg.PathTemplate, sourceKeyPlaceholder) {
		return nil, fmt.Errorf("path template %q has no %s placeholder", cfg.PathTemplate, sourceKeyPlaceholder)
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}

	logger := log.With().Str("component", "statistics").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Reader{
		fetcher:      cfg.Fetcher,
		locker:       cfg.Locker,
		pathTemplate: cfg.PathTemplate,
		accept:       cfg.Accept,
		logger:       logger,
	}, nil
}

// Path returns the feed path for sourceKey.
func (r *Reader) Path(sourceKey string) string {
	return strings.ReplaceAll(r.pathTemplate, sourceKeyPlaceholder, url.PathEscape(sourceKey))
}

// Records returns the feed of sourceKey as a lazy sequence. The upstream
// request is made when iteration starts, and the sequence is single-use:
// ranging over it again yields nothing.
//
// A non-success response or a transport failure ends the sequence without
// records. A malformed row is yielded as a *DecodeError and ends the
// sequence. Caller cancellation ends it silently. The response body is
// closed whenever the sequence ends, including when the caller breaks out.
func (r *Reader) Records(ctx context.Context, sourceKey string) iter.Seq2[LiveStatisticsEntry, error] {
	var used atomic.Bool

	return func(yield func(LiveStatisticsEntry, error) bool) {
		if used.Swap(true) {
			return
		}

		path := r.Path(sourceKey)
		logger := r.logger.With().Str("source", sourceKey).Str("path", path).Logger()

		resp, ok := r.open(ctx, logger, sourceKey, path)
		if !ok {
			return
		}
		defer resp.Close()

		reader := csv.NewReader(resp.Body)
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = true
		reader.TrimLeadingSpace = true

		for {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("Failed to read live statistics feed")
				yield(LiveStatisticsEntry{}, fmt.Errorf("read %s: %w", path, err))
				return
			}

			line, _ := reader.FieldPos(0)
			entry, err := parseRow(row, line)
			if err != nil {
				statsDecodeErrorsTotal.Inc()
				logger.Error().Err(err).Msg("Malformed live statistics row")
				yield(LiveStatisticsEntry{}, err)
				return
			}

			statsRecordsTotal.Inc()
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// open acquires the source lock, issues the request and releases the lock
// once the response headers are in.
func (r *Reader) open(ctx context.Context, logger zerolog.Logger, sourceKey, path string) (*client.Response, bool) {
	if sourceKey == "" {
		logger.Error().Err(errMissingSourceKey).Str("error_class", string(client.ErrorClassConfig)).Msg("Invalid live statistics request")
		return nil, false
	}

	handle, err := r.locker.Acquire(ctx, "stats:"+sourceKey)
	if err != nil {
		statsPullsTotal.WithLabelValues("canceled").Inc()
		logger.Warn().Err(err).Msg("Live statistics lock wait aborted")
		return nil, false
	}
	defer handle.Release()

	header := http.Header{}
	header.Set("Accept", r.accept)

	resp, err := r.fetcher.Get(ctx, path, header)
	if err != nil {
		class := client.Classify(err)
		if class == client.ErrorClassCanceled {
			statsPullsTotal.WithLabelValues("canceled").Inc()
		} else {
			statsPullsTotal.WithLabelValues("transport").Inc()
		}
		logger.Error().Err(err).Str("error_class", string(class)).Msg("Failed to get live download counts")
		return nil, false
	}

	if !resp.IsSuccess() {
		resp.Close()
		statsPullsTotal.WithLabelValues("status").Inc()
		logger.Debug().Int("status", resp.StatusCode).Msg("Live statistics feed unavailable")
		return nil, false
	}

	statsPullsTotal.WithLabelValues("ok").Inc()
	return resp, true
}

// parseRow decodes one feed row. Columns past the fourth are ignored.
func parseRow(row []string, line int) (LiveStatisticsEntry, error) {
	if len(row) < columns {
		return LiveStatisticsEntry{}, &DecodeError{Line: line, Column: len(row), Err: errMissingColumn}
	}

	var counters [columns - 1]int64
	for i := range counters {
		value := strings.TrimSpace(row[i+1])
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return LiveStatisticsEntry{}, &DecodeError{Line: line, Column: i + 1, Value: value, Err: err}
		}
		if n < 0 {
			return LiveStatisticsEntry{}, &DecodeError{Line: line, Column: i + 1, Value: value, Err: errNegativeCounter}
		}
		counters[i] = n
	}

	return LiveStatisticsEntry{
		ID:              row[0],
		TotalDownloads:  counters[0],
		UniqueDownloads: counters[1],
		TotalViews:      counters[2],
	}, nil
}

// Find returns the entry with id, stopping the pull as soon as it is seen.
// A missing entry is (zero, false, nil); a malformed feed returns the
// decode error.
func (r *Reader) Find(ctx context.Context, sourceKey, id string) (LiveStatisticsEntry, bool, error) {
	for entry, err := range r.Records(ctx, sourceKey) {
		if err != nil {
			return LiveStatisticsEntry{}, false, err
		}
		if entry.ID == id {
			return entry, true, nil
		}
	}
	return LiveStatisticsEntry{}, false, nil
}
