package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mochibug/lazymilktea/config"
)

const sampleBugreport = `Build fingerprint: 'google/sunfish/sunfish:12/SP1A.210812.016/1234:user/release-keys'
[ro.build.version.sdk]: [31]
[persist.sys.timezone]: [UTC]
== dumpstate: 2024-01-15 10:00:00
------ MAIN (logcat -b main) ------
01-15 10:00:00.000     1     2 I MyTag: hello
01-15 10:00:00.001     1     2 E OtherTag: boom
01-15 10:00:00.002     1     2 I MyTag: world
`

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	cacheDir := t.TempDir()
	cfg := config.Default()
	cfg.CacheRoot = cacheDir
	svc := New(cfg)

	path := filepath.Join(t.TempDir(), "bugreport.txt")
	if err := os.WriteFile(path, []byte(sampleBugreport), 0o644); err != nil {
		t.Fatal(err)
	}
	return svc, path
}

func TestParseThenQueryEndToEnd(t *testing.T) {
	svc, path := newTestService(t)

	summary, progress, err := svc.ParseBugreportStreaming(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseBugreportStreaming: %v", err)
	}
	for range progress {
	}
	if summary.Events != 3 {
		t.Fatalf("Events = %d, want 3", summary.Events)
	}
	if summary.EfTotal != 1 {
		t.Fatalf("EfTotal = %d, want 1", summary.EfTotal)
	}

	fp, err := FingerprintFor(path)
	if err != nil {
		t.Fatalf("FingerprintFor: %v", err)
	}

	stats, err := svc.GetLogcatStats(context.Background(), fp, LogFilters{})
	if err != nil {
		t.Fatalf("GetLogcatStats: %v", err)
	}
	if stats.TotalRows != 3 {
		t.Fatalf("TotalRows = %d, want 3", stats.TotalRows)
	}

	resp, err := svc.QueryLogcatV2(context.Background(), fp, LogFilters{Tag: "MyTag"}, nil, 10, "forward")
	if err != nil {
		t.Fatalf("QueryLogcatV2: %v", err)
	}
	if len(resp.Rows) != 2 {
		t.Fatalf("got %d rows for tag MyTag, want 2", len(resp.Rows))
	}
	for _, r := range resp.Rows {
		if r.Tag != "MyTag" {
			t.Errorf("unexpected tag %q", r.Tag)
		}
	}
}

func TestParseBugreportStreamingMissingPath(t *testing.T) {
	svc, _ := newTestService(t)
	_, progress, err := svc.ParseBugreportStreaming(context.Background(), "/does/not/exist.txt")
	for range progress {
	}
	if err != ErrBugreportNotFound {
		t.Fatalf("err = %v, want ErrBugreportNotFound", err)
	}
}
