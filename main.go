// Package main is the entry point for the lazymilktea CLI, a local
// driver over the same ingest/index/query pipeline the WASM bridge
// exposes to a host.
package main

import (
	"github.com/mochibug/lazymilktea/cmd/lazymilktea"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	lazymilktea.Execute(version, commit, date)
}
