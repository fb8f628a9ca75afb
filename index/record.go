// Package index implements the Indexer: a single pass over the Line
// Parser's output that writes the rows store plus three auxiliary
// indexes (summary, time bucket, inverted tag/pid postings) into a
// cache directory keyed by report identity.
package index

import (
	"encoding/binary"
	"errors"
)

// ErrCorruptRecord is raised when a cache artifact's binary framing does
// not parse, prompting the caller to treat the cache as stale.
var ErrCorruptRecord = errors.New("index: corrupt cache record")

// Record is the on-disk shape of one LogRow, written once per accepted
// line to the rows store.
type Record struct {
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

func encodeRecord(r Record) []byte {
	size := 8 + 4 + len(r.TsRaw) + 1 + 8 + 1 + 4 + len(r.Tag) + 4 + 4 + 4 + len(r.Msg) + 4 + len(r.Section)
	buf := make([]byte, 0, size)
	var tmp8 [8]byte
	var tmp4 [4]byte

	putInt64 := func(v int64) {
		binary.BigEndian.PutUint64(tmp8[:], uint64(v))
		buf = append(buf, tmp8[:]...)
	}
	putString := func(s string) {
		binary.BigEndian.PutUint32(tmp4[:], uint32(len(s)))
		buf = append(buf, tmp4[:]...)
		buf = append(buf, s...)
	}

	putInt64(r.ByteOffset)
	putString(r.TsRaw)
	if r.TsEpochMs != nil {
		buf = append(buf, 1)
		putInt64(*r.TsEpochMs)
	} else {
		buf = append(buf, 0)
	}
	level := byte('?')
	if len(r.Level) > 0 {
		level = r.Level[0]
	}
	buf = append(buf, level)
	putString(r.Tag)
	binary.BigEndian.PutUint32(tmp4[:], uint32(r.Pid))
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint32(tmp4[:], uint32(r.Tid))
	buf = append(buf, tmp4[:]...)
	putString(r.Msg)
	putString(r.Section)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	var r Record
	pos := 0
	need := func(n int) bool { return pos+n <= len(b) }

	if !need(8) {
		return r, ErrCorruptRecord
	}
	r.ByteOffset = int64(binary.BigEndian.Uint64(b[pos:]))
	pos += 8

	readString := func() (string, bool) {
		if !need(4) {
			return "", false
		}
		n := int(binary.BigEndian.Uint32(b[pos:]))
		pos += 4
		if n < 0 || !need(n) {
			return "", false
		}
		s := string(b[pos : pos+n])
		pos += n
		return s, true
	}

	var ok bool
	if r.TsRaw, ok = readString(); !ok {
		return r, ErrCorruptRecord
	}
	if !need(1) {
		return r, ErrCorruptRecord
	}
	hasTs := b[pos]
	pos++
	if hasTs == 1 {
		if !need(8) {
			return r, ErrCorruptRecord
		}
		v := int64(binary.BigEndian.Uint64(b[pos:]))
		pos += 8
		r.TsEpochMs = &v
	}
	if !need(1) {
		return r, ErrCorruptRecord
	}
	r.Level = string(rune(b[pos]))
	pos++
	if r.Tag, ok = readString(); !ok {
		return r, ErrCorruptRecord
	}
	if !need(4) {
		return r, ErrCorruptRecord
	}
	r.Pid = int32(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	if !need(4) {
		return r, ErrCorruptRecord
	}
	r.Tid = int32(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	if r.Msg, ok = readString(); !ok {
		return r, ErrCorruptRecord
	}
	if r.Section, ok = readString(); !ok {
		return r, ErrCorruptRecord
	}
	return r, nil
}
