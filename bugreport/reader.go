// Package bugreport implements the Source Reader: it opens a bugreport
// path (flat text, zip, gzip, or 7z), extracts the device preamble, and
// streams the logcat byte range as monotonically offset lines.
package bugreport

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/pgzip"
)

// Errors surfaced to the caller. Per-row parse errors never reach here;
// these are input/archive/IO failures only.
var (
	ErrNotFound           = errors.New("bugreport: not found")
	ErrUnsupportedArchive = errors.New("bugreport: no bugreport*.txt entry in archive")
)

// IoError wraps an underlying I/O failure with its originating operation.
type IoError struct {
	Kind string
	Err  error
}

func (e *IoError) Error() string { return fmt.Sprintf("bugreport: io error (%s): %v", e.Kind, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// Line is one logical line from the logcat byte range, tagged with the
// section it was read from and its byte offset within that logical
// stream (not the compressed archive).
type Line struct {
	ByteOffset int64
	Bytes      []byte
	Section    string
}

// Section records the extent of one section-header-delimited block of
// the bugreport, in logical-stream byte offsets. Recorded even though
// only logcat-buffer sections are forwarded downstream, so callers can
// recover provenance later (§9 "Multi-section logcat").
type Section struct {
	Name  string
	Start int64
	End   int64
}

// Report is the result of streaming a bugreport source: the device
// preamble plus the section boundaries observed while streaming. The
// logcat lines themselves go to the channel passed to Stream.
type Report struct {
	Device   DeviceInfo
	Sections []Section
}

var sectionHeaderRE = regexp.MustCompile(`^-{3,}\s*([A-Za-z0-9_ .]+?)\s*(?:\([^)]*\))?\s*-{3,}\s*$`)

// logcatBufferNames is the set of section names whose contents are
// forwarded to the Line Parser.
var logcatBufferNames = map[string]bool{
	"SYSTEM LOG": true,
	"SYSTEM":     true,
	"MAIN":       true,
	"MAIN LOG":   true,
	"EVENTS":     true,
	"EVENTS LOG": true,
	"RADIO":      true,
	"RADIO LOG":  true,
	"CRASH":      true,
	"CRASH LOG":  true,
	"KERNEL":     true,
	"KERNEL LOG": true,
}

// bugreportEntryRE matches a zip entry name of the form bugreport*.txt,
// case-insensitively, the same pattern battery-historian's own reader
// uses to pick the right central-directory entry.
var bugreportEntryRE = regexp.MustCompile(`(?i)^bugreport.*\.txt$`)

const bufSize = 64 * 1024

// Open resolves path to a plain-text reader over the bugreport's
// contents, detecting zip/gzip/7z wrapping by extension or magic bytes.
// The caller is responsible for closing the returned io.ReadCloser.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &IoError{Kind: "open", Err: err}
	}

	magic := make([]byte, 6)
	n, _ := io.ReadFull(f, magic)
	magic = magic[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &IoError{Kind: "seek", Err: err}
	}

	switch {
	case isZipMagic(magic) || strings.HasSuffix(strings.ToLower(path), ".zip"):
		return openZip(f)
	case isGzipMagic(magic) || strings.HasSuffix(strings.ToLower(path), ".gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, &IoError{Kind: "gzip", Err: err}
		}
		return &joinCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case is7zMagic(magic) || strings.HasSuffix(strings.ToLower(path), ".7z"):
		return open7z(f, path)
	default:
		return f, nil
	}
}

func isZipMagic(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 0x03 && b[3] == 0x04
}

func isGzipMagic(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func is7zMagic(b []byte) bool {
	return len(b) >= 6 && b[0] == '7' && b[1] == 'z' && b[2] == 0xBC && b[3] == 0xAF && b[4] == 0x27 && b[5] == 0x1C
}

// openZip selects the first entry matching bugreport*.txt from the
// archive and returns a reader over its decompressed content.
func openZip(f *os.File) (io.ReadCloser, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IoError{Kind: "stat", Err: err}
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, &IoError{Kind: "zip", Err: err}
	}
	for _, entry := range zr.File {
		if bugreportEntryRE.MatchString(entry.Name) {
			rc, err := entry.Open()
			if err != nil {
				f.Close()
				return nil, &IoError{Kind: "zip-entry", Err: err}
			}
			return &joinCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
		}
	}
	f.Close()
	return nil, ErrUnsupportedArchive
}

// open7z mirrors openZip for the .7z-wrapped variant some vendor bug
// collection tools produce when the zip alone exceeds a size limit.
func open7z(f *os.File, path string) (io.ReadCloser, error) {
	f.Close()
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, &IoError{Kind: "7z", Err: err}
	}
	for _, entry := range r.File {
		if bugreportEntryRE.MatchString(entry.Name) {
			rc, err := entry.Open()
			if err != nil {
				r.Close()
				return nil, &IoError{Kind: "7z-entry", Err: err}
			}
			return &joinCloser{Reader: rc, closers: []io.Closer{rc, r}}, nil
		}
	}
	r.Close()
	return nil, ErrUnsupportedArchive
}

type joinCloser struct {
	io.Reader
	closers []io.Closer
}

func (j *joinCloser) Close() error {
	var firstErr error
	for _, c := range j.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stream reads src line by line, folding the device preamble (everything
// before the first recognised section header) into Report.Device, and
// forwards lines from logcat-buffer sections to out with strictly
// increasing logical byte offsets. Stream never materializes the full
// input; it reads through a fixed-size buffered reader. It closes out
// when done, mirroring the teacher's channel-producer idiom.
//
// onDevice is invoked exactly once, as soon as the full preamble has
// been scanned (at the first section header, or at EOF if the input
// contains no section headers at all) and strictly before any Line is
// sent on out, so a caller reading device info from onDevice can safely
// construct a downstream consumer (e.g. a timezone-aware line parser)
// before the first Line arrives.
func Stream(src io.Reader, out chan<- Line, onDevice func(DeviceInfo)) (Report, error) {
	defer close(out)

	var report Report
	var scanner preambleScanner
	reader := bufio.NewReaderSize(src, bufSize)

	var (
		offset          int64
		currentSection  string
		forwarding      bool
		sectionStart    int64
		seenAnySection  bool
		deviceDelivered bool
	)

	deliverDevice := func() {
		if !deviceDelivered {
			deviceDelivered = true
			if onDevice != nil {
				onDevice(report.Device)
			}
		}
	}

	closeSection := func(end int64) {
		if seenAnySection {
			report.Sections = append(report.Sections, Section{Name: currentSection, Start: sectionStart, End: end})
		}
	}

	for {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			line := bytes.TrimRight(raw, "\r\n")
			text := string(line)

			if m := sectionHeaderRE.FindStringSubmatch(text); m != nil {
				closeSection(offset)
				deliverDevice()
				currentSection = strings.ToUpper(strings.TrimSpace(m[1]))
				forwarding = logcatBufferNames[currentSection]
				sectionStart = offset
				seenAnySection = true
			} else if !seenAnySection {
				scanner.scanLine(&report.Device, text)
			} else if forwarding {
				out <- Line{ByteOffset: offset, Bytes: append([]byte(nil), line...), Section: currentSection}
			}
			offset += int64(len(raw))
		}
		if err != nil {
			if err == io.EOF {
				closeSection(offset)
				deliverDevice()
				return report, nil
			}
			deliverDevice()
			return report, &IoError{Kind: "read", Err: err}
		}
	}
}
