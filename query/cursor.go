package query

import (
	"errors"

	"github.com/mochibug/lazymilktea/index"
)

// Sentinel errors surfaced to the external command layer.
var (
	ErrCursorInvalid = errors.New("query: cursor invalid or stale")
	ErrFilterInvalid = errors.New("query: filter invalid")
	ErrCacheStale    = errors.New("query: cache schema version mismatch")
)

// Cursor addresses a position in the row store under a specific filter
// set. It is never constructed by a caller except by echoing one a
// prior Response handed back; the executor re-validates FilterHash
// against the presented filter set and Position against the row
// store's current bounds before trusting either.
type Cursor struct {
	Position   uint64 `json:"position"`
	Direction  string `json:"direction"` // "forward" or "backward"
	FilterHash uint64 `json:"filterHash"`
}

func (c Cursor) validate(expectedFilterHash uint64) error {
	if c.Direction != "forward" && c.Direction != "backward" {
		return ErrCursorInvalid
	}
	if c.FilterHash != expectedFilterHash {
		return ErrCursorInvalid
	}
	return nil
}

// RowView is a LogRow as handed back over the external interface:
// decoded, JSON-friendly, and carrying the ordinal a cursor addresses.
type RowView struct {
	Ordinal    int64  `json:"ordinal"`
	ByteOffset int64  `json:"byteOffset"`
	TsRaw      string `json:"tsRaw"`
	TsEpochMs  *int64 `json:"tsEpochMs,omitempty"`
	Level      string `json:"level"`
	Tag        string `json:"tag"`
	Pid        int32  `json:"pid"`
	Tid        int32  `json:"tid"`
	Msg        string `json:"msg"`
	Section    string `json:"section"`
}

func rowViewOf(ordinal int64, r index.Record) RowView {
	return RowView{
		Ordinal:    ordinal,
		ByteOffset: r.ByteOffset,
		TsRaw:      r.TsRaw,
		TsEpochMs:  r.TsEpochMs,
		Level:      r.Level,
		Tag:        r.Tag,
		Pid:        r.Pid,
		Tid:        r.Tid,
		Msg:        r.Msg,
		Section:    r.Section,
	}
}

// Response is one page of query results.
type Response struct {
	Rows           []RowView `json:"rows"`
	NextCursor     *Cursor   `json:"nextCursor,omitempty"`
	PrevCursor     *Cursor   `json:"prevCursor,omitempty"`
	HasMoreNext    bool      `json:"hasMoreNext"`
	HasMorePrev    bool      `json:"hasMorePrev"`
	EstimatedTotal *int64    `json:"estimatedTotal,omitempty"`
	PositionRatio  float64   `json:"positionRatio"`
}

// Stats is the `stats` endpoint's answer: read from summary.json for an
// empty filter set, tallied over the matching rows otherwise.
type Stats struct {
	TotalRows    int64            `json:"totalRows"`
	LevelCounts  map[string]int64 `json:"levelCounts"`
	Malformed    int64            `json:"malformed"`
	MinTsEpochMs *int64           `json:"minTsEpochMs,omitempty"`
	MaxTsEpochMs *int64           `json:"maxTsEpochMs,omitempty"`
	MinTsDisplay string           `json:"minTsDisplay,omitempty"`
	MaxTsDisplay string           `json:"maxTsDisplay,omitempty"`
	BestEffortTz bool             `json:"bestEffortTz"`
}
