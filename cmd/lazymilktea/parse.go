package lazymilktea

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/service"
)

var parseCmd = &cobra.Command{
	Use:   "parse <bugreport>",
	Short: "Ingest a bugreport and build its index, or reuse an existing one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := service.New(loadConfig())
		path := args[0]

		summary, progress, err := svc.ParseBugreportStreaming(context.Background(), path)
		for p := range progress {
			fmt.Printf("[progress] %s: %d/%d bytes (%.1f%%), %d rows\n",
				p.Phase, p.BytesRead, p.TotalBytes, p.Percent, p.RowsProcessed)
		}
		if err != nil {
			fatalServiceErr(err)
		}

		fp, err := service.FingerprintFor(path)
		if err != nil {
			fatalServiceErr(err)
		}

		printJSON(struct {
			Fingerprint string                `json:"fingerprint"`
			Summary     service.ParseSummary `json:"summary"`
		}{fp, summary})
	},
}
