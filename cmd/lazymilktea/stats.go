package lazymilktea

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/service"
)

var statsCmd = &cobra.Command{
	Use:   "stats <bugreport>",
	Short: "Print the row/level summary for a bugreport's logcat section, optionally filtered",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := service.New(loadConfig())
		fp, err := ensureCached(svc, args[0])
		if err != nil {
			fatalServiceErr(err)
		}

		stats, err := svc.GetLogcatStats(context.Background(), fp, buildFilters(cmd))
		if err != nil {
			fatalServiceErr(err)
		}
		printStats(stats, formatFlag)
	},
}

func init() {
	statsCmd.Flags().StringVar(&formatFlag, "format", "json", "json or table")
}
