package logcat

import "testing"

func collect(lines []string) []Row {
	out := make(chan Row, len(lines)+1)
	p := NewParser("2024-01-15 00:00:00", "UTC", 0, out)
	for i, l := range lines {
		p.Feed(int64(i*100), l, "MAIN")
	}
	p.Finish()
	close(out)
	var rows []Row
	for r := range out {
		rows = append(rows, r)
	}
	return rows
}

func TestBasicParseWithContinuation(t *testing.T) {
	lines := []string{
		"01-15 10:00:00.000     1     2 I MyTag: hello",
		"01-15 10:00:00.001     1     2 E MyTag: boom",
		"    at Foo.bar(Foo.java:1)",
	}
	rows := collect(lines)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Msg != "boom\n    at Foo.bar(Foo.java:1)" {
		t.Errorf("msg = %q", rows[1].Msg)
	}
	if rows[0].Level != "I" || rows[1].Level != "E" {
		t.Errorf("levels = %q, %q", rows[0].Level, rows[1].Level)
	}
}

func TestOrphanContinuationDropped(t *testing.T) {
	lines := []string{
		"    orphan line before any match",
		"01-15 10:00:00.000     1     2 I MyTag: hello",
	}
	rows := collect(lines)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Msg != "hello" {
		t.Errorf("msg = %q", rows[0].Msg)
	}
}

func TestMalformedLevelDropped(t *testing.T) {
	lines := []string{
		"01-15 10:00:00.000     1     2 X MyTag: bad level",
		"01-15 10:00:00.500     1     2 I MyTag: good",
	}
	rows := collect(lines)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestBlankLineDoesNotBreakContinuation(t *testing.T) {
	lines := []string{
		"01-15 10:00:00.000     1     2 I MyTag: hello",
		"",
		"    still part of the message",
	}
	rows := collect(lines)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Msg != "hello\n    still part of the message" {
		t.Errorf("msg = %q", rows[0].Msg)
	}
}

func TestYearRollover(t *testing.T) {
	out := make(chan Row, 4)
	p := NewParser("2023-12-31 00:00:00", "UTC", 0, out)
	p.Feed(0, "12-31 23:59:59.000     1     2 I MyTag: end of year", "MAIN")
	p.Feed(100, "01-01 00:00:01.000     1     2 I MyTag: new year", "MAIN")
	p.Finish()
	close(out)
	var rows []Row
	for r := range out {
		rows = append(rows, r)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].TsEpochMs == nil || rows[1].TsEpochMs == nil {
		t.Fatalf("expected both timestamps normalised")
	}
	if *rows[1].TsEpochMs <= *rows[0].TsEpochMs {
		t.Errorf("expected monotonic epoch across year rollover, got %d then %d", *rows[0].TsEpochMs, *rows[1].TsEpochMs)
	}
}

func TestMaxMsgBytesOverride(t *testing.T) {
	out := make(chan Row, 2)
	p := NewParser("2024-01-15 00:00:00", "UTC", 8, out)
	p.Feed(0, "01-15 10:00:00.000     1     2 I MyTag: 0123456789", "MAIN")
	p.Finish()
	close(out)
	var rows []Row
	for r := range out {
		rows = append(rows, r)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Msg != "01234567" {
		t.Errorf("msg = %q, want truncated to 8 bytes", rows[0].Msg)
	}
}

func TestPidOverflowDropped(t *testing.T) {
	lines := []string{
		"01-15 10:00:00.000 99999999999999 2 I MyTag: huge pid",
	}
	rows := collect(lines)
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}
