package query

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/mochibug/lazymilktea/index"
)

// Executor serves stats and cursor-paginated queries against one
// committed cache directory. It holds the time/tag/pid indexes and
// summary entirely in memory and reads row bodies from the row store
// lazily, one ordinal at a time.
type Executor struct {
	dir         string
	summary     index.Summary
	timeIndex   []index.TimeIndexEntry
	tagPostings *index.PostingsFile
	pidPostings *index.PostingsFile
	store       *index.RowStore
}

// Open loads every artifact Build wrote into cacheDir. A schema version
// mismatch is reported as ErrCacheStale so the caller can force a
// rebuild instead of serving garbage.
func Open(cacheDir string, fs afero.Fs) (*Executor, error) {
	summary, err := index.ReadSummary(fs, cacheDir)
	if err != nil {
		return nil, err
	}
	if summary.SchemaVersion != index.SchemaVersion {
		return nil, ErrCacheStale
	}
	timeIdx, err := index.ReadTimeIndex(fs, filepath.Join(cacheDir, index.TimeIndexFile))
	if err != nil {
		return nil, err
	}
	tagP, err := index.ReadPostings(fs, filepath.Join(cacheDir, index.InvTagFile))
	if err != nil {
		return nil, err
	}
	pidP, err := index.ReadPostings(fs, filepath.Join(cacheDir, index.InvPidFile))
	if err != nil {
		return nil, err
	}
	store, err := index.OpenRowStore(filepath.Join(cacheDir, index.RowsFileName))
	if err != nil {
		return nil, err
	}
	return &Executor{
		dir:         cacheDir,
		summary:     summary,
		timeIndex:   timeIdx,
		tagPostings: tagP,
		pidPostings: pidP,
		store:       store,
	}, nil
}

// Close releases the row store's file handle.
func (e *Executor) Close() error { return e.store.Close() }

// Timezone returns the IANA zone name recorded for this report at
// ingest time (empty if the preamble's persist.sys.timezone was
// missing or unrecognised, in which case timestamps were parsed as
// UTC on a best-effort basis).
func (e *Executor) Timezone() string { return e.summary.Timezone }

// Stats answers the stats(filters) command. An empty filter set is
// O(1), read directly from summary.json; a non-empty one scans the
// candidate ordinals filter planning produces and tallies counts
// without building RowViews, so cost stays proportional to the
// candidate set rather than the full row count.
func (e *Executor) Stats(f Filters) (Stats, error) {
	if f.IsEmpty() {
		return Stats{
			TotalRows:    e.summary.TotalRows,
			LevelCounts:  e.summary.LevelCounts,
			Malformed:    e.summary.Malformed,
			MinTsEpochMs: e.summary.MinTsEpochMs,
			MaxTsEpochMs: e.summary.MaxTsEpochMs,
			MinTsDisplay: e.summary.MinTsDisplay,
			MaxTsDisplay: e.summary.MaxTsDisplay,
			BestEffortTz: e.summary.BestEffortTz,
		}, nil
	}

	p, err := e.buildPlan(f)
	if err != nil {
		return Stats{}, err
	}
	domain := e.domainOrdinals(p)

	st := Stats{LevelCounts: make(map[string]int64), BestEffortTz: e.summary.BestEffortTz}
	// Malformed lines never became rows in the store, so there is
	// nothing to re-filter them by; the summary's global count stands.
	st.Malformed = e.summary.Malformed
	for _, ordinal := range domain {
		rec, err := e.store.Read(ordinal)
		if err != nil {
			return Stats{}, err
		}
		if !p.matches(ordinal, rec) {
			continue
		}
		st.TotalRows++
		st.LevelCounts[rec.Level]++
		if rec.TsEpochMs != nil {
			ts := *rec.TsEpochMs
			if st.MinTsEpochMs == nil || ts < *st.MinTsEpochMs {
				st.MinTsEpochMs = &ts
				st.MinTsDisplay = rec.TsRaw
			}
			if st.MaxTsEpochMs == nil || ts > *st.MaxTsEpochMs {
				st.MaxTsEpochMs = &ts
				st.MaxTsDisplay = rec.TsRaw
			}
		}
	}
	return st, nil
}

// plan is the compiled, reusable form of a Filters value: everything
// Query's scan loop needs to decide whether a row matches, plus the
// narrowest ordinal domain we could prove must contain every match.
type plan struct {
	levels      map[string]bool
	tagAlts     []string
	pid         *int32
	tid         *int32
	tsTo        *int64
	textMatch   func(string) bool
	notText     string
	caseSens    bool
	domain      []int64 // nil means "scan the whole store"
	domainFloor int64   // lower ordinal bound, applied whether or not domain is nil
}

func (e *Executor) buildPlan(f Filters) (plan, error) {
	p := plan{
		levels:   f.levelSet(),
		tagAlts:  f.TagAlternatives(),
		pid:      f.Pid,
		tid:      f.Tid,
		tsTo:     f.TsTo,
		notText:  f.NotText,
		caseSens: f.CaseSensitive,
	}

	mode := f.TextMode
	if mode == "" {
		mode = "plain"
	}
	switch mode {
	case "plain", "regex":
	default:
		return plan{}, ErrFilterInvalid
	}
	textMatch, err := buildTextMatcher(mode, f.Text, f.CaseSensitive)
	if err != nil {
		return plan{}, err
	}
	p.textMatch = textMatch

	var (
		tagOrds, pidOrds   []int64
		tagExact, pidExact bool
		haveTag, havePid   bool
	)
	if len(p.tagAlts) > 0 {
		tagOrds, tagExact = unionPostings(e.tagPostings, p.tagAlts)
		haveTag = true
	}
	if f.Pid != nil {
		pidOrds, pidExact = unionPostings(e.pidPostings, []string{strconv.FormatInt(int64(*f.Pid), 10)})
		havePid = true
	}

	switch {
	case haveTag && tagExact && havePid && pidExact:
		p.domain = intersectSorted(tagOrds, pidOrds)
	case haveTag && tagExact:
		p.domain = tagOrds
	case havePid && pidExact:
		p.domain = pidOrds
	default:
		p.domain = nil
	}

	if f.TsFrom != nil {
		ord, ok := index.SeekTimeIndex(e.timeIndex, index.BucketKey(*f.TsFrom))
		if !ok {
			p.domain = []int64{}
		} else {
			// The bucket seek is minute-granular; step past rows of that
			// bucket whose timestamp is still before TsFrom.
			for ord < e.store.Len() {
				rec, err := e.store.Read(ord)
				if err != nil {
					return plan{}, err
				}
				if rec.TsEpochMs != nil && *rec.TsEpochMs >= *f.TsFrom {
					break
				}
				ord++
			}
			p.domainFloor = ord
		}
	}

	return p, nil
}

func (p plan) matches(ordinal int64, r index.Record) bool {
	if ordinal < p.domainFloor {
		return false
	}
	if p.levels != nil && !p.levels[r.Level] {
		return false
	}
	if p.pid != nil && r.Pid != *p.pid {
		return false
	}
	if p.tid != nil && r.Tid != *p.tid {
		return false
	}
	if p.tsTo != nil && (r.TsEpochMs == nil || *r.TsEpochMs > *p.tsTo) {
		return false
	}
	if len(p.tagAlts) > 0 {
		ok := false
		for _, t := range p.tagAlts {
			if t == r.Tag {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if p.textMatch != nil && !p.textMatch(r.Msg) {
		return false
	}
	if p.notText != "" {
		msg, nt := r.Msg, p.notText
		if !p.caseSens {
			msg, nt = strings.ToLower(msg), strings.ToLower(nt)
		}
		if strings.Contains(msg, nt) {
			return false
		}
	}
	return true
}

func buildTextMatcher(mode, text string, caseSensitive bool) (func(string) bool, error) {
	if text == "" {
		return nil, nil
	}
	if mode == "regex" {
		pattern := text
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil {
			return re.MatchString, nil
		}
		// An invalid regex degrades to a plain substring match on the
		// raw pattern text rather than failing the whole query.
	}
	return buildPlainMatcher(text, caseSensitive), nil
}

func buildPlainMatcher(text string, caseSensitive bool) func(string) bool {
	alts := strings.Split(text, "|")
	if !caseSensitive {
		for i := range alts {
			alts[i] = strings.ToLower(alts[i])
		}
	}
	return func(s string) bool {
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		for _, a := range alts {
			if a != "" && strings.Contains(s, a) {
				return true
			}
		}
		return false
	}
}

func unionPostings(pf *index.PostingsFile, keys []string) (ords []int64, exact bool) {
	exact = true
	seen := make(map[int64]bool)
	for _, k := range keys {
		p, ok := pf.Keys[k]
		if !ok {
			continue
		}
		if p.Sampled {
			exact = false
		}
		for _, o := range p.Ordinals {
			seen[o] = true
		}
	}
	ords = make([]int64, 0, len(seen))
	for o := range seen {
		ords = append(ords, o)
	}
	sort.Slice(ords, func(i, j int) bool { return ords[i] < ords[j] })
	return ords, exact
}

func intersectSorted(a, b []int64) []int64 {
	out := make([]int64, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// domainOrdinals returns the candidate ordinals to walk, in ascending
// order, bounded by the store's current length.
func (e *Executor) domainOrdinals(p plan) []int64 {
	if p.domain != nil {
		out := make([]int64, 0, len(p.domain))
		for _, o := range p.domain {
			if o >= p.domainFloor && o < e.store.Len() {
				out = append(out, o)
			}
		}
		return out
	}
	n := e.store.Len()
	out := make([]int64, 0, n-p.domainFloor)
	for o := p.domainFloor; o < n; o++ {
		out = append(out, o)
	}
	return out
}

const defaultLimit = 100
const maxLimit = 1000

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Query returns one page of rows matching filters, starting from
// cursor (nil for the first page) and walking in direction ("forward"
// or "backward"); direction is only consulted when cursor is nil, since
// a presented cursor carries its own continuation direction. Matches
// are always collected and returned in ascending byteOffset (ordinal)
// order, even when paging backward.
func (e *Executor) Query(filters Filters, cursor *Cursor, direction string, limit int) (Response, error) {
	if direction != "forward" && direction != "backward" {
		direction = "forward"
	}
	limit = clampLimit(limit)
	fh := filters.Fingerprint()

	p, err := e.buildPlan(filters)
	if err != nil {
		return Response{}, err
	}
	domain := e.domainOrdinals(p)

	startIdx := 0
	if direction == "backward" {
		startIdx = len(domain) - 1
	}
	if cursor != nil {
		if err := cursor.validate(fh); err != nil {
			return Response{}, err
		}
		if cursor.Position >= uint64(e.store.Len()) {
			return Response{}, ErrCursorInvalid
		}
		direction = cursor.Direction
		idx := sort.Search(len(domain), func(i int) bool { return domain[i] >= int64(cursor.Position) })
		if direction == "forward" {
			if idx < len(domain) && domain[idx] == int64(cursor.Position) {
				idx++
			}
			startIdx = idx
		} else {
			idx--
			startIdx = idx
		}
	}

	var collected []RowView
	idx := startIdx
	for len(collected) < limit && idx >= 0 && idx < len(domain) {
		ordinal := domain[idx]
		rec, err := e.store.Read(ordinal)
		if err != nil {
			return Response{}, err
		}
		if p.matches(ordinal, rec) {
			collected = append(collected, rowViewOf(ordinal, rec))
		}
		if direction == "forward" {
			idx++
		} else {
			idx--
		}
	}

	hasMoreNext := false
	hasMorePrev := false
	if direction == "forward" {
		hasMoreNext = idx < len(domain)
		hasMorePrev = startIdx > 0
	} else {
		hasMorePrev = idx >= 0
		hasMoreNext = startIdx < len(domain)-1
		reverseRowViews(collected)
	}

	resp := Response{Rows: collected, HasMoreNext: hasMoreNext, HasMorePrev: hasMorePrev}
	if len(collected) > 0 {
		first := collected[0].Ordinal
		last := collected[len(collected)-1].Ordinal
		if hasMoreNext {
			resp.NextCursor = &Cursor{Position: uint64(last), Direction: "forward", FilterHash: fh}
		}
		if hasMorePrev {
			resp.PrevCursor = &Cursor{Position: uint64(first), Direction: "backward", FilterHash: fh}
		}
	}
	if len(domain) > 0 {
		total := int64(len(domain))
		resp.EstimatedTotal = &total
		if len(collected) > 0 {
			resp.PositionRatio = float64(collected[len(collected)-1].Ordinal) / float64(domain[len(domain)-1]+1)
		}
	}
	return resp, nil
}

func reverseRowViews(rows []RowView) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// JumpToTime returns the first page of matches at or after
// targetEpochMs, per filters, as if a fresh "next" query had started
// from that point in time.
func (e *Executor) JumpToTime(filters Filters, targetEpochMs int64, limit int) (Response, error) {
	f := filters
	f.TsFrom = &targetEpochMs
	return e.Query(f, nil, "forward", limit)
}
