package index

import (
	"github.com/tidwall/wal"
)

// RowStore is the append-only, offset-addressable record store backing
// `rows`. It wraps a tidwall/wal log, translating this package's
// zero-based record ordinals to the log's 1-based indices.
type RowStore struct {
	log   *wal.Log
	count int64
}

// CreateRowStore opens a fresh row store at path. path must not already
// contain a WAL.
func CreateRowStore(path string) (*RowStore, error) {
	l, err := wal.Open(path, nil)
	if err != nil {
		return nil, err
	}
	return &RowStore{log: l}, nil
}

// OpenRowStore opens an existing row store for reading (and, if the
// caller resumes an ingest, for continued appends).
func OpenRowStore(path string) (*RowStore, error) {
	l, err := wal.Open(path, nil)
	if err != nil {
		return nil, err
	}
	last, err := l.LastIndex()
	if err != nil {
		return nil, err
	}
	return &RowStore{log: l, count: int64(last)}, nil
}

// Append writes r as the next record and returns its ordinal.
func (s *RowStore) Append(r Record) (int64, error) {
	ordinal := s.count
	if err := s.log.Write(uint64(ordinal+1), encodeRecord(r)); err != nil {
		return 0, err
	}
	s.count++
	return ordinal, nil
}

// Len reports the number of records written so far.
func (s *RowStore) Len() int64 { return s.count }

// Read decodes the record at ordinal.
func (s *RowStore) Read(ordinal int64) (Record, error) {
	if ordinal < 0 || ordinal >= s.count {
		return Record{}, ErrCorruptRecord
	}
	data, err := s.log.Read(uint64(ordinal + 1))
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(data)
}

// Close closes the underlying log.
func (s *RowStore) Close() error { return s.log.Close() }
