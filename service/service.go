// Package service implements the four commands exposed to the host:
// parse_bugreport_streaming, get_logcat_stats, query_logcat_v2, and
// jump_to_time. It is the seam the WASM bridge and the local CLI both
// drive, so neither surface duplicates orchestration logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/mochibug/lazymilktea/bugreport"
	"github.com/mochibug/lazymilktea/cache"
	"github.com/mochibug/lazymilktea/config"
	"github.com/mochibug/lazymilktea/index"
	"github.com/mochibug/lazymilktea/query"
)

// Typed exit conditions of the parse command (spec.md §6).
var (
	ErrBugreportNotFound = errors.New("service: bugreport not found")
	ErrUnsupportedFormat = errors.New("service: unsupported bugreport format")
	ErrCorruptArchive    = errors.New("service: corrupt archive")
	ErrIoError           = errors.New("service: io error")
	ErrCancelled         = errors.New("service: cancelled")
)

// displayLayout is the LogFilters wire format for tsFrom/tsTo: local
// time in the report's own timezone, no offset.
const displayLayout = "2006-01-02 15:04:05"

// LogFilters is the wire shape of a filter set, as received from the
// host. TsFrom/TsTo are local-time strings in the report's own
// timezone; Service resolves them to epoch milliseconds using the
// device info recorded at ingest time.
type LogFilters struct {
	TsFrom        string   `json:"tsFrom,omitempty"`
	TsTo          string   `json:"tsTo,omitempty"`
	Levels        []string `json:"levels,omitempty"`
	Tag           string   `json:"tag,omitempty"`
	Pid           *int32   `json:"pid,omitempty"`
	Tid           *int32   `json:"tid,omitempty"`
	Text          string   `json:"text,omitempty"`
	NotText       string   `json:"notText,omitempty"`
	TextMode      string   `json:"textMode,omitempty"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`
}

// QueryCursor is the wire shape of a pagination cursor: callers only
// ever echo one back verbatim from a prior QueryResponse.
type QueryCursor = query.Cursor

// ParseProgress is one `parse://progress` event.
type ParseProgress = index.Progress

// ParseSummary is returned by ParseBugreportStreaming.
type ParseSummary = index.ParseSummary

// LogcatStats is returned by GetLogcatStats.
type LogcatStats = query.Stats

// QueryResponse is returned by QueryLogcatV2 and JumpToTime.
type QueryResponse = query.Response

// Service ties together config, cache placement, and the index/query
// layers behind the four external commands.
type Service struct {
	fs  afero.Fs
	cfg config.Config
}

// New constructs a Service backed by the real filesystem and cfg.
func New(cfg config.Config) *Service {
	return &Service{fs: afero.NewOsFs(), cfg: cfg}
}

func (s *Service) cacheRoot() (string, error) {
	return cache.Root(s.fs, s.cfg.CacheRoot)
}

// buildOptions maps the operator-facing config.Config onto the
// Indexer's Options, so a loaded config.yaml actually reaches the
// postings-sampling, progress-cadence, efRecent-window, and message-
// size knobs it names rather than only CacheRoot/CacheCeilingBytes.
func buildOptions(cfg config.Config) index.Options {
	return index.Options{
		PostingsThreshold:   cfg.PostingsThreshold,
		PostingsSampleRate:  cfg.PostingsSampleRate,
		ProgressInterval:    time.Duration(cfg.ProgressIntervalMs) * time.Millisecond,
		ProgressBytePercent: cfg.ProgressBytePercent,
		RecentWindowMs:      cfg.EfRecentWindowMs,
		MaxMessageBytes:     cfg.MaxMessageBytes,
	}
}

// ParseBugreportStreaming ingests path, reusing a committed cache
// directory if its identity fingerprint already exists, and otherwise
// rebuilding it. Progress events are delivered on the returned channel,
// which is closed no later than the returned error/summary.
func (s *Service) ParseBugreportStreaming(ctx context.Context, path string) (ParseSummary, <-chan ParseProgress, error) {
	progress := make(chan ParseProgress, 16)

	fp, err := cache.Fingerprint(path)
	if err != nil {
		close(progress)
		return ParseSummary{}, progress, translateOpenErr(err)
	}
	root, err := s.cacheRoot()
	if err != nil {
		close(progress)
		return ParseSummary{}, progress, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	finalDir := cache.Dir(root, fp)

	if cache.Exists(s.fs, root, fp) {
		if summary, err := rehydrateSummary(s.fs, finalDir); err == nil {
			close(progress)
			return summary, progress, nil
		}
		// Fall through and rebuild: the cache entry is present but
		// unreadable (corrupt or stale schema version).
	}

	r, err := bugreport.Open(path)
	if err != nil {
		close(progress)
		return ParseSummary{}, progress, translateOpenErr(err)
	}
	defer r.Close()

	var totalBytes int64
	if fi, statErr := s.fs.Stat(path); statErr == nil {
		totalBytes = fi.Size()
	}

	tempDir, err := cache.NewTempDir(s.fs, root)
	if err != nil {
		close(progress)
		return ParseSummary{}, progress, fmt.Errorf("%w: %v", ErrIoError, err)
	}

	summary, buildErr := index.Build(ctx, s.fs, tempDir, r, totalBytes, progress, buildOptions(s.cfg))
	close(progress)
	if buildErr != nil {
		_ = cache.Discard(s.fs, tempDir)
		if errors.Is(buildErr, context.Canceled) {
			return ParseSummary{}, progress, ErrCancelled
		}
		return ParseSummary{}, progress, fmt.Errorf("%w: %v", ErrIoError, buildErr)
	}

	if err := cache.Commit(s.fs, tempDir, finalDir); err != nil {
		return ParseSummary{}, progress, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	if err := cache.EvictToFit(s.fs, root, s.cfg.CacheCeilingBytes); err != nil {
		return ParseSummary{}, progress, fmt.Errorf("%w: %v", ErrIoError, err)
	}

	return summary, progress, nil
}

// rehydrateSummary rebuilds a ParseSummary from an already-committed
// cache when re-parsing the same report. Only Events and EfTotal are
// recovered, from summary.json's row and level counts. Device info,
// Anrs, Crashes and EfRecent are not recorded in summary.json (only in
// the ParseSummary returned at original ingest time), so a cache hit
// returns them as zero values. A summary with a different schema
// version is reported as query.ErrCacheStale.
func rehydrateSummary(fs afero.Fs, dir string) (ParseSummary, error) {
	sum, err := index.ReadSummary(fs, dir)
	if err != nil {
		return ParseSummary{}, err
	}
	if sum.SchemaVersion != index.SchemaVersion {
		return ParseSummary{}, query.ErrCacheStale
	}
	var efRecent int64
	return ParseSummary{
		Events:   sum.TotalRows,
		EfTotal:  sum.LevelCounts["E"] + sum.LevelCounts["F"],
		EfRecent: efRecent,
	}, nil
}

func translateOpenErr(err error) error {
	switch {
	case errors.Is(err, bugreport.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return ErrBugreportNotFound
	case errors.Is(err, bugreport.ErrUnsupportedArchive):
		return ErrUnsupportedFormat
	}
	var ioErr *bugreport.IoError
	if errors.As(err, &ioErr) {
		switch ioErr.Kind {
		case "zip", "zip-entry", "7z", "7z-entry", "gzip":
			return fmt.Errorf("%w: %v", ErrCorruptArchive, ioErr.Err)
		}
		return fmt.Errorf("%w: %v", ErrIoError, ioErr.Err)
	}
	return fmt.Errorf("%w: %v", ErrIoError, err)
}

// openExecutor resolves fingerprint to its committed cache directory
// and opens a query.Executor over it. A stale or corrupt cache directory
// is removed and reported as query.ErrCacheStale. A successful open
// refreshes the directory's modification time, which cache.EvictToFit
// uses as its last-access time.
func (s *Service) openExecutor(fingerprint string) (*query.Executor, error) {
	root, err := s.cacheRoot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	dir := cache.Dir(root, fingerprint)
	exec, err := query.Open(dir, s.fs)
	if err != nil {
		if errors.Is(err, query.ErrCacheStale) || errors.Is(err, index.ErrCorruptRecord) {
			_ = cache.Invalidate(s.fs, dir)
			return nil, query.ErrCacheStale
		}
		return nil, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	now := time.Now()
	_ = s.fs.Chtimes(dir, now, now)
	return exec, nil
}

// resolveFilters converts the wire LogFilters into query.Filters,
// parsing tsFrom/tsTo against the report's recorded timezone and
// rejecting an inverted range before any disk access.
func resolveFilters(f LogFilters, loc *time.Location) (query.Filters, error) {
	qf := query.Filters{
		Levels:        f.Levels,
		Tag:           f.Tag,
		Pid:           f.Pid,
		Tid:           f.Tid,
		Text:          f.Text,
		NotText:       f.NotText,
		TextMode:      f.TextMode,
		CaseSensitive: f.CaseSensitive,
	}
	if f.TsFrom != "" {
		t, err := time.ParseInLocation(displayLayout, f.TsFrom, loc)
		if err != nil {
			return query.Filters{}, query.ErrFilterInvalid
		}
		ms := t.UnixMilli()
		qf.TsFrom = &ms
	}
	if f.TsTo != "" {
		t, err := time.ParseInLocation(displayLayout, f.TsTo, loc)
		if err != nil {
			return query.Filters{}, query.ErrFilterInvalid
		}
		ms := t.UnixMilli()
		qf.TsTo = &ms
	}
	if qf.TsFrom != nil && qf.TsTo != nil && *qf.TsFrom > *qf.TsTo {
		return query.Filters{}, query.ErrFilterInvalid
	}
	return qf, nil
}

// GetLogcatStats returns the row/level summary for fingerprint, scanning
// to match filters when one is given and reading straight from
// summary.json when it is empty.
func (s *Service) GetLogcatStats(ctx context.Context, fingerprint string, filters LogFilters) (LogcatStats, error) {
	exec, err := s.openExecutor(fingerprint)
	if err != nil {
		return LogcatStats{}, err
	}
	defer exec.Close()

	loc := executorLocation(exec)
	qf, err := resolveFilters(filters, loc)
	if err != nil {
		return LogcatStats{}, err
	}
	return exec.Stats(qf)
}

// QueryLogcatV2 serves one page of results.
func (s *Service) QueryLogcatV2(ctx context.Context, fingerprint string, filters LogFilters, cursor *QueryCursor, limit int, direction string) (QueryResponse, error) {
	exec, err := s.openExecutor(fingerprint)
	if err != nil {
		return QueryResponse{}, err
	}
	defer exec.Close()

	loc := executorLocation(exec)
	qf, err := resolveFilters(filters, loc)
	if err != nil {
		return QueryResponse{}, err
	}

	return exec.Query(qf, cursor, direction, limit)
}

// JumpToTime resolves targetTime against fingerprint's report timezone
// and returns the first page at or after it.
func (s *Service) JumpToTime(ctx context.Context, fingerprint string, filters LogFilters, targetTime string, limit int) (QueryResponse, error) {
	exec, err := s.openExecutor(fingerprint)
	if err != nil {
		return QueryResponse{}, err
	}
	defer exec.Close()

	loc := executorLocation(exec)
	qf, err := resolveFilters(filters, loc)
	if err != nil {
		return QueryResponse{}, err
	}
	t, err := time.ParseInLocation(displayLayout, targetTime, loc)
	if err != nil {
		return QueryResponse{}, query.ErrFilterInvalid
	}
	return exec.JumpToTime(qf, t.UnixMilli(), limit)
}

// FingerprintFor exposes cache.Fingerprint so callers (CLI, bridge) can
// compute the identity key for a path without re-opening it.
func FingerprintFor(path string) (string, error) {
	return cache.Fingerprint(path)
}

// executorLocation resolves the timezone recorded for exec's report at
// ingest time, falling back to UTC exactly as the Line Parser does when
// the zone is missing or unrecognised.
func executorLocation(exec *query.Executor) *time.Location {
	if tz := exec.Timezone(); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}
