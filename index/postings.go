package index

import (
	"bufio"
	"encoding/binary"
	"sort"

	"github.com/spf13/afero"
)

// postingBuilder accumulates an in-memory inverted index during the
// ingest pass: key (tag string, or decimal-formatted pid) -> sorted
// ordinals. Once the index-wide entry count crosses threshold, newly-
// seen keys go straight to sampled mode, and any key already tracked
// continues to receive only every Nth (sampleRate) ordinal from then on.
type postingBuilder struct {
	threshold    int64
	sampleRate   int64
	entries      map[string][]int64
	sampled      map[string]bool
	insertCounts map[string]int64
	total        int64
	degraded     bool
}

func newPostingBuilder(threshold, sampleRate int64) *postingBuilder {
	if sampleRate <= 0 {
		sampleRate = 1
	}
	return &postingBuilder{
		threshold:    threshold,
		sampleRate:   sampleRate,
		entries:      make(map[string][]int64),
		sampled:      make(map[string]bool),
		insertCounts: make(map[string]int64),
	}
}

func (b *postingBuilder) add(key string, ordinal int64) {
	b.insertCounts[key]++
	if b.sampled[key] {
		if b.insertCounts[key]%b.sampleRate == 0 {
			b.entries[key] = append(b.entries[key], ordinal)
		}
		return
	}
	if b.degraded {
		b.sampled[key] = true
		if b.insertCounts[key]%b.sampleRate == 0 {
			b.entries[key] = append(b.entries[key], ordinal)
		}
		return
	}
	b.entries[key] = append(b.entries[key], ordinal)
	b.total++
	if b.total > b.threshold {
		b.degraded = true
	}
}

// Posting is one key's decoded postings list.
type Posting struct {
	Ordinals []int64
	Sampled  bool
}

// PostingsFile is the decoded form of an inv_tag.bin/inv_pid.bin file.
type PostingsFile struct {
	Keys map[string]Posting
}

func writePostings(fs afero.Fs, path string, b *postingBuilder) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	// A key in sampled mode may not have had an ordinal recorded yet;
	// it is still written, flagged sampled, so readers do not mistake it
	// for an exact, empty posting.
	for k := range b.sampled {
		if _, ok := b.entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var tmp4 [4]byte
	var tmp8 [8]byte
	binary.BigEndian.PutUint32(tmp4[:], uint32(len(keys)))
	if _, err := w.Write(tmp4[:]); err != nil {
		return err
	}

	for _, k := range keys {
		binary.BigEndian.PutUint32(tmp4[:], uint32(len(k)))
		if _, err := w.Write(tmp4[:]); err != nil {
			return err
		}
		if _, err := w.WriteString(k); err != nil {
			return err
		}
		sampledByte := byte(0)
		if b.sampled[k] {
			sampledByte = 1
		}
		if err := w.WriteByte(sampledByte); err != nil {
			return err
		}
		ords := b.entries[k]
		binary.BigEndian.PutUint32(tmp4[:], uint32(len(ords)))
		if _, err := w.Write(tmp4[:]); err != nil {
			return err
		}
		for _, o := range ords {
			binary.BigEndian.PutUint64(tmp8[:], uint64(o))
			if _, err := w.Write(tmp8[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// ReadPostings loads a committed inv_tag.bin/inv_pid.bin file.
func ReadPostings(fs afero.Fs, path string) (*PostingsFile, error) {
	return readPostings(fs, path)
}

func readPostings(fs afero.Fs, path string) (*PostingsFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	pf := &PostingsFile{Keys: make(map[string]Posting)}
	pos := 0
	if len(data) < 4 {
		return pf, nil
	}
	numKeys := binary.BigEndian.Uint32(data[pos:])
	pos += 4
	for i := uint32(0); i < numKeys; i++ {
		if pos+4 > len(data) {
			return nil, ErrCorruptRecord
		}
		klen := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if klen < 0 || pos+klen > len(data) {
			return nil, ErrCorruptRecord
		}
		key := string(data[pos : pos+klen])
		pos += klen
		if pos+1 > len(data) {
			return nil, ErrCorruptRecord
		}
		sampled := data[pos] == 1
		pos++
		if pos+4 > len(data) {
			return nil, ErrCorruptRecord
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if n < 0 {
			return nil, ErrCorruptRecord
		}
		ords := make([]int64, n)
		for j := 0; j < n; j++ {
			if pos+8 > len(data) {
				return nil, ErrCorruptRecord
			}
			ords[j] = int64(binary.BigEndian.Uint64(data[pos:]))
			pos += 8
		}
		pf.Keys[key] = Posting{Ordinals: ords, Sampled: sampled}
	}
	return pf, nil
}
