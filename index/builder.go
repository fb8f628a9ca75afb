package index

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/mochibug/lazymilktea/bugreport"
	"github.com/mochibug/lazymilktea/logcat"
)

// ctxReader aborts a blocking Read as soon as ctx is cancelled, so the
// ingest pass's cancellation check does not have to wait for a full I/O
// buffer to drain.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
	}
	return c.r.Read(p)
}

// SchemaVersion is written into summary.json; a mismatch on read
// triggers a forced rebuild per the original cache layout contract.
const SchemaVersion = 1

const (
	phaseStarting   = "starting"
	phaseScanning   = "scanning"
	phaseIndexing   = "indexing"
	phaseFinalizing = "finalizing"
)

// Options carries the deployment-tunable knobs Build and its postings
// builder need. The zero value is not meaningful; callers should start
// from DefaultOptions and override only what they mean to change.
type Options struct {
	// PostingsThreshold/PostingsSampleRate govern when the tag/pid
	// inverted indexes degrade to sampled postings; see postings.go.
	PostingsThreshold  int64
	PostingsSampleRate int64
	// ProgressInterval/ProgressBytePercent bound how often Build emits
	// a phaseIndexing Progress event during the row scan.
	ProgressInterval    time.Duration
	ProgressBytePercent float64
	// RecentWindowMs is the "last N minutes" window efRecent counts
	// E/F rows within, measured back from the report's max timestamp.
	RecentWindowMs int64
	// MaxMessageBytes caps how much continuation text the Line Parser
	// accumulates onto a single row's message.
	MaxMessageBytes int64
}

// DefaultOptions mirrors config.Default()'s values, so a caller that
// never loads a config file still gets sane behavior.
func DefaultOptions() Options {
	return Options{
		PostingsThreshold:   1 << 20,
		PostingsSampleRate:  8,
		ProgressInterval:    250 * time.Millisecond,
		ProgressBytePercent: 1.0,
		RecentWindowMs:      5 * 60 * 1000,
		MaxMessageBytes:     64 * 1024,
	}
}

// Progress is one `parse://progress` event.
type Progress struct {
	Phase         string  `json:"phase"`
	BytesRead     int64   `json:"bytesRead"`
	TotalBytes    int64   `json:"totalBytes"`
	RowsProcessed int64   `json:"rowsProcessed"`
	Percent       float64 `json:"percent"`
}

// Summary is the decoded summary.json: the `stats` endpoint's
// unfiltered answer plus the fields the progress/percent computation
// and forced-rebuild check need.
type Summary struct {
	SchemaVersion int              `json:"schemaVersion"`
	TotalRows     int64            `json:"totalRows"`
	LevelCounts   map[string]int64 `json:"levelCounts"`
	Malformed     int64            `json:"malformed"`
	MinTsEpochMs  *int64           `json:"minTsEpochMs,omitempty"`
	MaxTsEpochMs  *int64           `json:"maxTsEpochMs,omitempty"`
	MinTsDisplay  string           `json:"minTsDisplay,omitempty"`
	MaxTsDisplay  string           `json:"maxTsDisplay,omitempty"`
	LogByteSize   int64            `json:"logByteSize"`
	BestEffortTz  bool             `json:"bestEffortTz"`
	Timezone      string           `json:"timezone,omitempty"`
}

// ParseSummary is returned to the caller on a successful Build.
type ParseSummary struct {
	Device   bugreport.DeviceInfo `json:"device"`
	Events   int64                `json:"events"`
	Anrs     int64                `json:"anrs"`
	Crashes  int64                `json:"crashes"`
	EfTotal  int64                `json:"efTotal"`
	EfRecent int64                `json:"efRecent"`
}

// File names within a committed cache directory. Exported so the Query
// Executor can open the same artifacts Build wrote.
const (
	RowsFileName    = "rows"
	SummaryFileName = "summary.json"
	TimeIndexFile   = "time_index.bin"
	InvTagFile      = "inv_tag.bin"
	InvPidFile      = "inv_pid.bin"
)

const (
	rowsFileName    = RowsFileName
	summaryFileName = SummaryFileName
	timeIndexFile   = TimeIndexFile
	invTagFile      = InvTagFile
	invPidFile      = InvPidFile
)

// Build runs the Source Reader, Line Parser, and Indexer in a single
// pass over src, staging the four cache artifacts under tempDir (via
// fs). The caller commits tempDir to its final location (cache.Commit)
// only after Build returns successfully. totalBytes, if known, improves
// progress percent; pass 0 if unknown. Build observes ctx.Done() between
// row batches and unwinds cleanly, discarding tempDir, if the caller
// cancels.
func Build(ctx context.Context, fs afero.Fs, tempDir string, src io.Reader, totalBytes int64, progress chan<- Progress, opts Options) (result ParseSummary, err error) {
	success := false
	defer func() {
		if !success {
			_ = fs.RemoveAll(tempDir)
		}
	}()

	sendProgress(progress, Progress{Phase: phaseStarting, TotalBytes: totalBytes})

	lines := make(chan bugreport.Line, 256)
	type streamResult struct {
		report bugreport.Report
		err    error
	}
	streamDone := make(chan streamResult, 1)

	var device bugreport.DeviceInfo
	deviceReady := make(chan struct{})

	go func() {
		report, err := bugreport.Stream(&ctxReader{ctx: ctx, r: src}, lines, func(d bugreport.DeviceInfo) {
			device = d
			close(deviceReady)
		})
		streamDone <- streamResult{report, err}
	}()

	<-deviceReady

	parserRows := make(chan logcat.Row, 256)
	parser := logcat.NewParser(device.ReportTime, device.Timezone, opts.MaxMessageBytes, parserRows)
	go func() {
		defer close(parserRows)
		for line := range lines {
			parser.Feed(line.ByteOffset, string(line.Bytes), line.Section)
		}
		parser.Finish()
	}()

	rowStorePath := filepath.Join(tempDir, rowsFileName)
	store, err := CreateRowStore(rowStorePath)
	if err != nil {
		return ParseSummary{}, err
	}

	tagPostings := newPostingBuilder(opts.PostingsThreshold, opts.PostingsSampleRate)
	pidPostings := newPostingBuilder(opts.PostingsThreshold, opts.PostingsSampleRate)
	timeBuilder := newTimeIndexBuilder()

	levelCounts := make(map[string]int64)
	var (
		minTs, maxTs       *int64
		minDisplay, maxDisplay string
		events, anrs, crashes, efTotal int64
		logByteSize        int64
		efTimestamps       []int64
	)

	sendProgress(progress, Progress{Phase: phaseScanning, TotalBytes: totalBytes})

	lastSent := time.Now()
	lastPercent := 0.0

	cancelled := false
rowLoop:
	for row := range parserRows {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			continue rowLoop
		}

		ordinal, err := store.Append(Record{
			ByteOffset: row.ByteOffset,
			TsRaw:      row.TsRaw,
			TsEpochMs:  row.TsEpochMs,
			Level:      row.Level,
			Tag:        row.Tag,
			Pid:        row.Pid,
			Tid:        row.Tid,
			Msg:        row.Msg,
			Section:    row.Section,
		})
		if err != nil {
			store.Close()
			return ParseSummary{}, err
		}

		events++
		levelCounts[row.Level]++
		logByteSize = row.ByteOffset

		if row.TsEpochMs != nil {
			ts := *row.TsEpochMs
			if minTs == nil || ts < *minTs {
				v := ts
				minTs = &v
				minDisplay = row.TsRaw
			}
			if maxTs == nil || ts > *maxTs {
				v := ts
				maxTs = &v
				maxDisplay = row.TsRaw
			}
			timeBuilder.observe(ts, ordinal)
		}

		tagPostings.add(row.Tag, ordinal)
		pidPostings.add(strconv.FormatInt(int64(row.Pid), 10), ordinal)

		if row.Tag == "ActivityManager" && hasPrefix(row.Msg, "ANR in ") {
			anrs++
		}
		if row.Level == "F" {
			crashes++
		} else if row.Tag == "AndroidRuntime" && hasPrefix(row.Msg, "FATAL EXCEPTION") {
			crashes++
		}
		if row.Level == "E" || row.Level == "F" {
			efTotal++
			if row.TsEpochMs != nil {
				efTimestamps = append(efTimestamps, *row.TsEpochMs)
			}
		}

		now := time.Now()
		percent := 0.0
		if totalBytes > 0 {
			percent = float64(logByteSize) / float64(totalBytes) * 100
		}
		if now.Sub(lastSent) >= opts.ProgressInterval || percent-lastPercent >= opts.ProgressBytePercent {
			sendProgress(progress, Progress{
				Phase:         phaseIndexing,
				BytesRead:     logByteSize,
				TotalBytes:    totalBytes,
				RowsProcessed: events,
				Percent:       percent,
			})
			lastSent = now
			lastPercent = percent
		}
	}

	res := <-streamDone
	if cancelled || errors.Is(res.err, context.Canceled) {
		store.Close()
		return ParseSummary{}, context.Canceled
	}
	if res.err != nil {
		store.Close()
		return ParseSummary{}, res.err
	}

	malformed := parser.Stats().Malformed
	bestEffort := parser.Stats().BestEffort

	var efRecent int64
	if maxTs != nil {
		cutoff := *maxTs - opts.RecentWindowMs
		for _, ts := range efTimestamps {
			if ts >= cutoff {
				efRecent++
			}
		}
	}

	sendProgress(progress, Progress{Phase: phaseFinalizing, TotalBytes: totalBytes, RowsProcessed: events, Percent: 100})

	if err := store.Close(); err != nil {
		return ParseSummary{}, err
	}
	if err := writeTimeIndex(fs, filepath.Join(tempDir, timeIndexFile), timeBuilder.entries); err != nil {
		return ParseSummary{}, err
	}
	if err := writePostings(fs, filepath.Join(tempDir, invTagFile), tagPostings); err != nil {
		return ParseSummary{}, err
	}
	if err := writePostings(fs, filepath.Join(tempDir, invPidFile), pidPostings); err != nil {
		return ParseSummary{}, err
	}

	summary := Summary{
		SchemaVersion: SchemaVersion,
		TotalRows:     events,
		LevelCounts:   levelCounts,
		Malformed:     malformed,
		MinTsEpochMs:  minTs,
		MaxTsEpochMs:  maxTs,
		MinTsDisplay:  minDisplay,
		MaxTsDisplay:  maxDisplay,
		LogByteSize:   logByteSize,
		BestEffortTz:  bestEffort,
		Timezone:      device.Timezone,
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return ParseSummary{}, err
	}
	if err := afero.WriteFile(fs, filepath.Join(tempDir, summaryFileName), summaryBytes, 0o644); err != nil {
		return ParseSummary{}, err
	}

	success = true
	return ParseSummary{
		Device:   device,
		Events:   events,
		Anrs:     anrs,
		Crashes:  crashes,
		EfTotal:  efTotal,
		EfRecent: efRecent,
	}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// sendProgress is a best-effort, non-blocking send that drops the
// oldest queued event when the channel is full, since progress is
// observational and lossy-by-design.
func sendProgress(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

// ReadSummary loads and decodes summary.json from a committed cache
// directory.
func ReadSummary(fs afero.Fs, dir string) (Summary, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, summaryFileName))
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, ErrCorruptRecord
	}
	return s, nil
}
