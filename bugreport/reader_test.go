package bugreport

import (
	"strings"
	"testing"
)

const sampleReport = `Build fingerprint: 'google/sunfish/sunfish:12/SP1A.210812.016/1234:user/release-keys'
[ro.build.version.sdk]: [31]
[ro.build.version.release]: [12]
[ro.product.model]: [Pixel 4a]
[ro.product.brand]: [google]
[persist.sys.timezone]: [America/New_York]
== dumpstate: 2024-01-15 10:00:00
------ SYSTEM LOG (logcat -b system) ------
01-15 09:59:59.000     1     2 I Zygote : some preamble noise
------ MAIN (logcat -b main) ------
01-15 10:00:00.000     1     2 I MyTag: hello
01-15 10:00:00.001     1     2 E MyTag: boom
    at Foo.bar(Foo.java:1)
------ EVENTS (logcat -b events) ------
01-15 10:00:01.000     3     4 I evt: tick
------ APPLICATION ERRORS ------
not logcat content, should be skipped
`

func TestStreamExtractsDeviceAndSections(t *testing.T) {
	out := make(chan Line, 16)
	report, err := Stream(strings.NewReader(sampleReport), out, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if report.Device.Model != "Pixel 4a" {
		t.Errorf("model = %q", report.Device.Model)
	}
	if report.Device.ApiLevel != 31 {
		t.Errorf("apiLevel = %d", report.Device.ApiLevel)
	}
	if report.Device.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", report.Device.Timezone)
	}

	var lines []Line
	for l := range out {
		lines = append(lines, l)
	}
	if len(lines) != 5 {
		t.Fatalf("got %d forwarded lines, want 5: %+v", len(lines), lines)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i].ByteOffset <= lines[i-1].ByteOffset {
			t.Errorf("byte offsets not strictly increasing at %d", i)
		}
	}
	if lines[0].Section != "SYSTEM LOG" {
		t.Errorf("first forwarded line section = %q", lines[0].Section)
	}

	var gotAppErrors bool
	for _, l := range lines {
		if strings.Contains(string(l.Bytes), "should be skipped") {
			gotAppErrors = true
		}
	}
	if gotAppErrors {
		t.Errorf("non-logcat section content leaked through")
	}

	if len(report.Sections) != 4 {
		t.Fatalf("got %d sections, want 4: %+v", len(report.Sections), report.Sections)
	}
}
