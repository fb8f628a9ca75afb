package index

import (
	"bufio"
	"encoding/binary"
	"sort"

	"github.com/spf13/afero"
)

// bucketMs is the minute-granularity bucket width used by time_index.
const bucketMs = int64(60 * 1000)

// BucketKey converts an epoch-millisecond timestamp to its minute bucket.
func BucketKey(epochMs int64) int64 { return epochMs / bucketMs }

// TimeIndexEntry is one (bucketKey, firstRecordOrdinal) pair.
type TimeIndexEntry struct {
	BucketKey    int64
	FirstOrdinal int64
}

// timeIndexBuilder records one entry per minute bucket the first time it
// is seen, relying on the Line Parser's within-section timestamp
// monotonicity to keep entries sorted by construction.
type timeIndexBuilder struct {
	entries   []TimeIndexEntry
	lastBucket int64
	have      bool
}

func newTimeIndexBuilder() *timeIndexBuilder {
	return &timeIndexBuilder{}
}

func (b *timeIndexBuilder) observe(epochMs, ordinal int64) {
	bucket := BucketKey(epochMs)
	if b.have && bucket == b.lastBucket {
		return
	}
	b.entries = append(b.entries, TimeIndexEntry{BucketKey: bucket, FirstOrdinal: ordinal})
	b.lastBucket = bucket
	b.have = true
}

func writeTimeIndex(fs afero.Fs, path string, entries []TimeIndexEntry) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	var tmp [16]byte
	for _, e := range entries {
		binary.BigEndian.PutUint64(tmp[0:8], uint64(e.BucketKey))
		binary.BigEndian.PutUint64(tmp[8:16], uint64(e.FirstOrdinal))
		if _, err := w.Write(tmp[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadTimeIndex loads a committed time_index.bin file.
func ReadTimeIndex(fs afero.Fs, path string) ([]TimeIndexEntry, error) {
	return readTimeIndex(fs, path)
}

func readTimeIndex(fs afero.Fs, path string) ([]TimeIndexEntry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if len(data)%16 != 0 {
		return nil, ErrCorruptRecord
	}
	n := len(data) / 16
	entries := make([]TimeIndexEntry, n)
	for i := 0; i < n; i++ {
		off := i * 16
		entries[i] = TimeIndexEntry{
			BucketKey:    int64(binary.BigEndian.Uint64(data[off : off+8])),
			FirstOrdinal: int64(binary.BigEndian.Uint64(data[off+8 : off+16])),
		}
	}
	return entries, nil
}

// SeekTimeIndex returns the ordinal of the first bucket >= targetBucket.
func SeekTimeIndex(entries []TimeIndexEntry, targetBucket int64) (int64, bool) {
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].BucketKey >= targetBucket })
	if idx >= len(entries) {
		return 0, false
	}
	return entries[idx].FirstOrdinal, true
}
