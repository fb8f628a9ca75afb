package lazymilktea

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/service"
)

var (
	jumpAtFlag    string
	jumpLimitFlag int
)

var jumpCmd = &cobra.Command{
	Use:   "jump-to-time <bugreport>",
	Short: "Return the first page of matches at or after a given local time",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := service.New(loadConfig())
		fp, err := ensureCached(svc, args[0])
		if err != nil {
			fatalServiceErr(err)
		}

		resp, err := svc.JumpToTime(context.Background(), fp, buildFilters(cmd), jumpAtFlag, jumpLimitFlag)
		if err != nil {
			fatalServiceErr(err)
		}
		printQueryResponse(resp, formatFlag)
	},
}

func init() {
	jumpCmd.Flags().StringVar(&jumpAtFlag, "at", "", "Target local time (YYYY-MM-DD HH:MM:SS), required")
	jumpCmd.Flags().IntVar(&jumpLimitFlag, "limit", 100, "Maximum rows to return (at most 1000; 0 or less uses 100)")
	jumpCmd.Flags().StringVar(&formatFlag, "format", "json", "json or table")
	_ = jumpCmd.MarkFlagRequired("at")
}
