// Package logcat implements the Line Parser: it recognises threadtime
// log lines, extracts the seven fields, normalises timestamps to
// epoch-millisecond integers, and attaches continuation lines.
package logcat

// Row is one successfully parsed threadtime log line.
type Row struct {
	ByteOffset int64
	TsRaw      string
	TsEpochMs  *int64
	Level      string
	Tag        string
	Pid        int32
	Tid        int32
	Msg        string
	Section    string
}

// Stats accumulates the running counters the Indexer needs alongside
// each accepted row.
type Stats struct {
	Malformed  int64
	BestEffort bool // true when the report's timezone was missing or unknown, so timestamps are normalised as UTC
}
