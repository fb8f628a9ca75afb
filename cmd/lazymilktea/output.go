package lazymilktea

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/mochibug/lazymilktea/service"
)

// printJSON writes v as indented JSON to stdout, the same
// MarshalIndent convention the output package's JSON exporter used.
func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("[ERROR] encoding output: %v", err)
	}
	fmt.Println(string(b))
}

// ensureCached builds (or reuses) the cache for path and returns its
// fingerprint, draining and discarding progress events. stats/query/
// jump-to-time all need this before they can open a query.Executor.
func ensureCached(svc *service.Service, path string) (string, error) {
	_, progress, err := svc.ParseBugreportStreaming(context.Background(), path)
	for range progress {
	}
	if err != nil {
		return "", err
	}
	return service.FingerprintFor(path)
}

func fatalServiceErr(err error) {
	fmt.Fprintln(os.Stderr, "[ERROR]", err)
	os.Exit(1)
}
