package query

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/mochibug/lazymilktea/index"
)

func buildCache(t *testing.T, log string) *Executor {
	t.Helper()
	fs := afero.NewOsFs()
	dir := t.TempDir()
	if _, err := index.Build(context.Background(), fs, dir, strings.NewReader(log), int64(len(log)), nil, index.DefaultOptions()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	exec, err := Open(dir, fs)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { exec.Close() })
	return exec
}

func genLog(n int) string {
	var sb strings.Builder
	sb.WriteString("Build fingerprint: 'g/s/s:12/1/1:user/release-keys'\n")
	sb.WriteString("[persist.sys.timezone]: [UTC]\n")
	sb.WriteString("------ MAIN (logcat -b main) ------\n")
	for i := 0; i < n; i++ {
		level := "I"
		if i%10 == 0 {
			level = "E"
		}
		sec := 10 + i/1000
		ms := i % 1000
		sb.WriteString(fmt.Sprintf("01-15 %02d:%02d:%02d.%03d     1     2 %s Tag%d: message %d\n",
			10, (i/60)%60, sec%60, ms, level, i%5, i))
	}
	return sb.String()
}

func TestStatsAndLevelFilter(t *testing.T) {
	exec := buildCache(t, genLog(100))

	stats, err := exec.Stats(Filters{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRows != 100 {
		t.Fatalf("TotalRows = %d, want 100", stats.TotalRows)
	}

	filtered, err := exec.Stats(Filters{Levels: []string{"E"}})
	if err != nil {
		t.Fatalf("Stats(filtered): %v", err)
	}
	if filtered.TotalRows != 10 {
		t.Fatalf("filtered TotalRows = %d, want 10", filtered.TotalRows)
	}
	if filtered.LevelCounts["E"] != 10 {
		t.Fatalf("filtered LevelCounts[E] = %d, want 10", filtered.LevelCounts["E"])
	}

	resp, err := exec.Query(Filters{Levels: []string{"E"}}, nil, "forward", 1000)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Rows) != 10 {
		t.Fatalf("got %d E rows, want 10", len(resp.Rows))
	}
	for _, r := range resp.Rows {
		if r.Level != "E" {
			t.Errorf("row level = %q, want E", r.Level)
		}
	}
}

// genThreadedLog is genLog but alternates tid between 100 and 200 so
// tid-equality filtering has something to discriminate on.
func genThreadedLog(n int) string {
	var sb strings.Builder
	sb.WriteString("Build fingerprint: 'g/s/s:12/1/1:user/release-keys'\n")
	sb.WriteString("[persist.sys.timezone]: [UTC]\n")
	sb.WriteString("------ MAIN (logcat -b main) ------\n")
	for i := 0; i < n; i++ {
		tid := 100
		if i%2 == 1 {
			tid = 200
		}
		sec := 10 + i/1000
		ms := i % 1000
		sb.WriteString(fmt.Sprintf("01-15 %02d:%02d:%02d.%03d     1   %3d I Tag%d: message %d\n",
			10, (i/60)%60, sec%60, ms, tid, i%5, i))
	}
	return sb.String()
}

func TestTidFilter(t *testing.T) {
	exec := buildCache(t, genThreadedLog(40))
	var tid200 int32 = 200

	resp, err := exec.Query(Filters{Tid: &tid200}, nil, "forward", 1000)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Rows) != 20 {
		t.Fatalf("got %d rows for tid=200, want 20", len(resp.Rows))
	}
	for _, r := range resp.Rows {
		if r.Tid != 200 {
			t.Errorf("row tid = %d, want 200", r.Tid)
		}
	}

	stats, err := exec.Stats(Filters{Tid: &tid200})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRows != 20 {
		t.Fatalf("Stats TotalRows = %d, want 20", stats.TotalRows)
	}
}

func TestTsToFilter(t *testing.T) {
	exec := buildCache(t, genLog(100))

	full, err := exec.Stats(Filters{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	mid := (*full.MinTsEpochMs + *full.MaxTsEpochMs) / 2

	resp, err := exec.Query(Filters{TsTo: &mid}, nil, "forward", 1000)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows) >= 100 {
		t.Fatalf("got %d rows with tsTo filter, want a strict subset of 100", len(resp.Rows))
	}
	for _, r := range resp.Rows {
		if r.TsEpochMs == nil || *r.TsEpochMs > mid {
			t.Errorf("row ts %v exceeds tsTo %d", r.TsEpochMs, mid)
		}
	}

	stats, err := exec.Stats(Filters{TsTo: &mid})
	if err != nil {
		t.Fatalf("Stats(tsTo): %v", err)
	}
	if stats.TotalRows != int64(len(resp.Rows)) {
		t.Fatalf("Stats TotalRows = %d, want %d", stats.TotalRows, len(resp.Rows))
	}
}

func TestTagOrFilter(t *testing.T) {
	exec := buildCache(t, genLog(50))

	resp, err := exec.Query(Filters{Tag: "Tag0|Tag1"}, nil, "forward", 1000)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, r := range resp.Rows {
		if r.Tag != "Tag0" && r.Tag != "Tag1" {
			t.Errorf("unexpected tag %q", r.Tag)
		}
	}
	if len(resp.Rows) == 0 {
		t.Fatalf("expected some rows matching Tag0|Tag1")
	}
}

func TestCursorContinuityAcrossPages(t *testing.T) {
	exec := buildCache(t, genLog(1000))

	var all []RowView
	var cursor *Cursor
	for page := 0; page < 10; page++ {
		resp, err := exec.Query(Filters{}, cursor, "forward", 250)
		if err != nil {
			t.Fatalf("page %d: Query: %v", page, err)
		}
		all = append(all, resp.Rows...)
		if resp.NextCursor == nil {
			break
		}
		cursor = resp.NextCursor
	}
	if len(all) != 1000 {
		t.Fatalf("collected %d rows across pages, want 1000", len(all))
	}
	for i, r := range all {
		if r.Ordinal != int64(i) {
			t.Fatalf("row %d has ordinal %d, pages not contiguous", i, r.Ordinal)
		}
	}
}

func TestStaleCursorRejected(t *testing.T) {
	exec := buildCache(t, genLog(200))

	resp, err := exec.Query(Filters{Levels: []string{"E"}}, nil, "forward", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.NextCursor == nil {
		t.Skip("not enough rows to produce a continuation cursor")
	}

	_, err = exec.Query(Filters{Levels: []string{"I"}}, resp.NextCursor, "forward", 10)
	if err != ErrCursorInvalid {
		t.Fatalf("err = %v, want ErrCursorInvalid", err)
	}
}

func TestJumpToTime(t *testing.T) {
	exec := buildCache(t, genLog(200))

	stats, err := exec.Stats(Filters{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.MaxTsEpochMs == nil {
		t.Fatal("expected a max timestamp")
	}
	target := *stats.MinTsEpochMs
	resp, err := exec.JumpToTime(Filters{}, target, 20)
	if err != nil {
		t.Fatalf("JumpToTime: %v", err)
	}
	if len(resp.Rows) == 0 {
		t.Fatalf("expected rows at/after the jump target")
	}
}
