package index

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const sampleLog = `Build fingerprint: 'google/sunfish/sunfish:12/SP1A.210812.016/1234:user/release-keys'
[ro.build.version.sdk]: [31]
[persist.sys.timezone]: [UTC]
== dumpstate: 2024-01-15 10:00:00
------ MAIN (logcat -b main) ------
01-15 10:00:00.000     1     2 I MyTag: hello
01-15 10:00:00.001     1     2 E MyTag: boom
    at Foo.bar(Foo.java:1)
`

func TestBuildProducesQueryableArtifacts(t *testing.T) {
	fs := afero.NewOsFs()
	tempDir := t.TempDir()

	progress := make(chan Progress, 16)
	summary, err := Build(context.Background(), fs, tempDir, strings.NewReader(sampleLog), int64(len(sampleLog)), progress, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	close(progress)

	if summary.Events != 2 {
		t.Errorf("events = %d, want 2", summary.Events)
	}
	if summary.EfTotal != 1 {
		t.Errorf("efTotal = %d, want 1", summary.EfTotal)
	}

	diskSummary, err := ReadSummary(fs, tempDir)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if diskSummary.TotalRows != 2 {
		t.Errorf("disk totalRows = %d, want 2", diskSummary.TotalRows)
	}
	if diskSummary.LevelCounts["I"] != 1 || diskSummary.LevelCounts["E"] != 1 {
		t.Errorf("levelCounts = %+v", diskSummary.LevelCounts)
	}

	store, err := OpenRowStore(tempDir + "/rows")
	if err != nil {
		t.Fatalf("OpenRowStore: %v", err)
	}
	defer store.Close()
	if store.Len() != 2 {
		t.Fatalf("store.Len() = %d, want 2", store.Len())
	}
	rec, err := store.Read(1)
	if err != nil {
		t.Fatalf("store.Read: %v", err)
	}
	if rec.Msg != "boom\n    at Foo.bar(Foo.java:1)" {
		t.Errorf("msg = %q", rec.Msg)
	}
}

func TestBuildHonorsPostingsOptions(t *testing.T) {
	fs := afero.NewOsFs()
	tempDir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("[persist.sys.timezone]: [UTC]\n")
	sb.WriteString("------ MAIN (logcat -b main) ------\n")
	for i := 0; i < 10; i++ {
		sb.WriteString(fmt.Sprintf("01-15 10:00:%02d.000     1     2 I SameTag: msg %d\n", i, i))
	}
	log := sb.String()

	opts := DefaultOptions()
	opts.PostingsThreshold = 2
	opts.PostingsSampleRate = 4

	if _, err := Build(context.Background(), fs, tempDir, strings.NewReader(log), int64(len(log)), nil, opts); err != nil {
		t.Fatalf("Build: %v", err)
	}

	pf, err := ReadPostings(fs, filepath.Join(tempDir, InvTagFile))
	if err != nil {
		t.Fatalf("ReadPostings: %v", err)
	}
	posting, ok := pf.Keys["SameTag"]
	if !ok {
		t.Fatalf("no posting for SameTag")
	}
	if !posting.Sampled {
		t.Fatalf("expected SameTag to degrade to sampled with a threshold of 2")
	}
	if len(posting.Ordinals) >= 10 {
		t.Fatalf("sampled posting recorded %d ordinals, want fewer than all 10", len(posting.Ordinals))
	}
}

func TestBuildDiscardsTempDirOnCancellation(t *testing.T) {
	fs := afero.NewOsFs()
	tempDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, fs, tempDir, strings.NewReader(sampleLog), 0, nil, DefaultOptions())
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if ok, _ := afero.DirExists(fs, tempDir); ok {
		t.Errorf("tempDir should have been removed after cancellation")
	}
}
