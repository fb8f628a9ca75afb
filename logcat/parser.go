package logcat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultMaxMsgBytes = 64 * 1024

// threadtimeRE matches the threadtime line shape. The level field is
// captured loosely as a single letter and validated against the
// canonical {V,D,I,W,E,F} set afterward, so an out-of-set letter is
// counted as malformed rather than silently treated as a continuation.
var threadtimeRE = regexp.MustCompile(`^(\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2}\.\d{3})\s+(\d+)\s+(\d+)\s+([A-Za-z])\s+(.+)$`)

const maxInt32 = 1<<31 - 1

// Parser is a stateful, single-pass threadtime line parser. Feed lines
// to it in order; it emits completed Rows on the channel given to
// NewParser, attaching continuation lines as it goes. Call Finish once
// the input is exhausted to flush the last pending row.
type Parser struct {
	loc   *time.Location
	year  int
	prevMD string

	maxMsgBytes int64
	pending     *pendingRow
	out         chan<- Row
	stats       Stats
}

type pendingRow struct {
	byteOffset  int64
	tsRaw       string
	tsEpochMs   *int64
	level       string
	tag         string
	msg         strings.Builder
	msgLen      int
	maxMsgBytes int64
	pid, tid    int32
	section     string
}

// NewParser constructs a Parser. reportTime seeds the initial year
// (format "YYYY-MM-DD HH:MM:SS"); if empty or unparseable, the current
// year is used. timezone is the preamble's persist.sys.timezone value;
// if empty or unknown to the Go tzdata, the parser falls back to UTC
// and marks every row's timestamp as best-effort. maxMsgBytes caps how
// much continuation text a single row accumulates; 0 or negative falls
// back to defaultMaxMsgBytes.
func NewParser(reportTime, timezone string, maxMsgBytes int64, out chan<- Row) *Parser {
	loc := time.UTC
	bestEffort := true
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
			bestEffort = false
		}
	}
	year := time.Now().Year()
	if reportTime != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", reportTime); err == nil {
			year = t.Year()
		}
	}
	if maxMsgBytes <= 0 {
		maxMsgBytes = defaultMaxMsgBytes
	}
	p := &Parser{loc: loc, year: year, out: out, maxMsgBytes: maxMsgBytes}
	p.stats.BestEffort = bestEffort
	return p
}

// Stats returns a snapshot of the running malformed-row counter.
func (p *Parser) Stats() Stats { return p.stats }

// Feed processes one raw line (without its trailing newline) from
// section of the logcat stream at byteOffset.
func (p *Parser) Feed(byteOffset int64, raw string, section string) {
	if strings.TrimSpace(raw) == "" {
		// Blank lines are ignored; they do not break continuation
		// attachment, so pending stays open across them.
		return
	}

	if m := threadtimeRE.FindStringSubmatch(raw); m != nil {
		p.flush()
		p.startRow(byteOffset, m, section)
		return
	}

	if p.pending == nil {
		// Orphan continuation: arrived before any match, dropped.
		return
	}
	p.appendContinuation(raw)
}

// Finish flushes any pending row. Call once after the input source is
// exhausted.
func (p *Parser) Finish() {
	p.flush()
}

func (p *Parser) startRow(byteOffset int64, m []string, section string) {
	monthDay := m[1]
	timeOfDay := m[2]

	if p.prevMD != "" && monthDay < p.prevMD {
		p.year++
	}
	p.prevMD = monthDay

	level := strings.ToUpper(m[5])
	if !isCanonicalLevel(level) {
		p.stats.Malformed++
		return
	}

	pid64, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || pid64 > maxInt32 {
		p.stats.Malformed++
		return
	}
	tid64, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil || tid64 > maxInt32 {
		p.stats.Malformed++
		return
	}

	rest := m[6]
	idx := strings.Index(rest, ": ")
	if idx < 0 {
		p.stats.Malformed++
		return
	}
	tag := strings.TrimSpace(rest[:idx])
	if tag == "" {
		p.stats.Malformed++
		return
	}
	msg := rest[idx+2:]

	tsRaw := monthDay + " " + timeOfDay
	var tsEpochMs *int64
	layout := "2006-01-02 15:04:05.000"
	stamp := fmt.Sprintf("%04d-%s %s", p.year, monthDay, timeOfDay)
	if t, err := time.ParseInLocation(layout, stamp, p.loc); err == nil {
		ms := t.UnixMilli()
		tsEpochMs = &ms
	}

	pr := &pendingRow{
		byteOffset:  byteOffset,
		tsRaw:       tsRaw,
		tsEpochMs:   tsEpochMs,
		level:       level,
		tag:         tag,
		pid:         int32(pid64),
		tid:         int32(tid64),
		section:     section,
		maxMsgBytes: p.maxMsgBytes,
	}
	pr.appendMsg(msg)
	p.pending = pr
}

func (p *Parser) appendContinuation(raw string) {
	p.pending.appendMsg("\n" + raw)
}

func (pr *pendingRow) appendMsg(s string) {
	limit := pr.maxMsgBytes
	if limit <= 0 {
		limit = defaultMaxMsgBytes
	}
	if int64(pr.msgLen) >= limit {
		return
	}
	remaining := limit - int64(pr.msgLen)
	if int64(len(s)) > remaining {
		s = s[:remaining]
	}
	pr.msg.WriteString(s)
	pr.msgLen += len(s)
}

func (p *Parser) flush() {
	if p.pending == nil {
		return
	}
	pr := p.pending
	p.pending = nil
	p.out <- Row{
		ByteOffset: pr.byteOffset,
		TsRaw:      pr.tsRaw,
		TsEpochMs:  pr.tsEpochMs,
		Level:      pr.level,
		Tag:        pr.tag,
		Pid:        pr.pid,
		Tid:        pr.tid,
		Msg:        pr.msg.String(),
		Section:    pr.section,
	}
}

func isCanonicalLevel(l string) bool {
	switch l {
	case "V", "D", "I", "W", "E", "F":
		return true
	}
	return false
}
