package bugreport

import (
	"regexp"
	"strconv"
	"strings"
)

// DeviceInfo is the device-identity preamble scanned once per report.
type DeviceInfo struct {
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	AndroidVersion string `json:"androidVersion"`
	ApiLevel       int    `json:"apiLevel"`
	BuildId        string `json:"buildId"`
	Fingerprint    string `json:"fingerprint"`
	UptimeMs       int64  `json:"uptimeMs"`
	ReportTime     string `json:"reportTime"`
	Timezone       string `json:"timezone,omitempty"`
	Battery        *Battery `json:"battery,omitempty"`
}

// Battery carries the optional Battery Info fields from the preamble.
type Battery struct {
	Level       int    `json:"level"`
	TempC       float64 `json:"tempC"`
	Status      string `json:"status"`
}

var (
	buildFingerprintRE = regexp.MustCompile(`Build fingerprint:\s*'?([^'\s][^']*)'?`)
	sdkVersionRE        = regexp.MustCompile(`\[ro\.build\.version\.sdk\]:\s*\[(\d+)\]`)
	androidVersionRE    = regexp.MustCompile(`\[ro\.build\.version\.release\]:\s*\[([^\]]+)\]`)
	modelNameRE         = regexp.MustCompile(`\[ro\.product\.model\]:\s*\[([^\]]+)\]`)
	brandRE             = regexp.MustCompile(`\[ro\.product\.brand\]:\s*\[([^\]]+)\]`)
	buildIdRE           = regexp.MustCompile(`\[ro\.build\.id\]:\s*\[([^\]]+)\]`)
	timezoneRE          = regexp.MustCompile(`\[persist\.sys\.timezone\]:\s*\[([^\]]+)\]`)
	dumpstateRE         = regexp.MustCompile(`==\s*dumpstate:\s*([\d-]+\s[\d:]+)`)
	uptimeRE            = regexp.MustCompile(`Uptime:\s*up time:\s*([\d.]+)`)
	batteryLevelRE      = regexp.MustCompile(`\blevel:\s*(\d+)`)
	batteryTempRE       = regexp.MustCompile(`\btemperature:\s*(\d+)`)
	batteryStatusRE     = regexp.MustCompile(`\bstatus:\s*(\d+)`)
)

var batteryInfoHeaderRE = regexp.MustCompile(`^Battery Info:`)

// preambleScanner tracks the small amount of state needed across preamble
// lines: whether we are currently inside the "Battery Info:" block, since
// "level:"/"status:" alone are too generic to key off of anywhere else in
// the preamble.
type preambleScanner struct {
	inBattery bool
}

// scanLine folds a single preamble line into info. It is called once per
// line for the portion of the report preceding the first section
// header; it never errors, matching the "device preamble is
// scanned once" requirement without a second pass.
func (s *preambleScanner) scanLine(info *DeviceInfo, line string) {
	if batteryInfoHeaderRE.MatchString(line) {
		s.inBattery = true
		return
	}
	if s.inBattery {
		if strings.HasPrefix(line, "------") {
			s.inBattery = false
		} else {
			s.scanBatteryLine(info, line)
			return
		}
	}
	if m := buildFingerprintRE.FindStringSubmatch(line); m != nil {
		info.Fingerprint = strings.TrimSpace(m[1])
		return
	}
	if m := sdkVersionRE.FindStringSubmatch(line); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			info.ApiLevel = v
		}
		return
	}
	if m := androidVersionRE.FindStringSubmatch(line); m != nil {
		info.AndroidVersion = m[1]
		return
	}
	if m := modelNameRE.FindStringSubmatch(line); m != nil {
		info.Model = m[1]
		return
	}
	if m := brandRE.FindStringSubmatch(line); m != nil {
		info.Brand = m[1]
		return
	}
	if m := buildIdRE.FindStringSubmatch(line); m != nil {
		info.BuildId = m[1]
		return
	}
	if m := timezoneRE.FindStringSubmatch(line); m != nil {
		info.Timezone = m[1]
		return
	}
	if m := dumpstateRE.FindStringSubmatch(line); m != nil {
		info.ReportTime = m[1]
		return
	}
	if m := uptimeRE.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			info.UptimeMs = int64(v * 1000)
		}
		return
	}
}

// scanBatteryLine parses fields within a "Battery Info:" block, which on
// real devices looks like a short indented key: value list.
func (s *preambleScanner) scanBatteryLine(info *DeviceInfo, line string) {
	if m := batteryLevelRE.FindStringSubmatch(line); m != nil {
		ensureBattery(info)
		if v, err := strconv.Atoi(m[1]); err == nil {
			info.Battery.Level = v
		}
	}
	if m := batteryTempRE.FindStringSubmatch(line); m != nil {
		ensureBattery(info)
		if v, err := strconv.Atoi(m[1]); err == nil {
			info.Battery.TempC = float64(v) / 10.0
		}
	}
	if m := batteryStatusRE.FindStringSubmatch(line); m != nil {
		ensureBattery(info)
		info.Battery.Status = m[1]
	}
}

func ensureBattery(info *DeviceInfo) {
	if info.Battery == nil {
		info.Battery = &Battery{}
	}
}
