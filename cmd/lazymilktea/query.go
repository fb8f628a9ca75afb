package lazymilktea

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/service"
)

var (
	cursorFlag    string
	limitFlag     int
	directionFlag string
)

var queryCmd = &cobra.Command{
	Use:   "query <bugreport>",
	Short: "Return one page of rows matching a filter set",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := service.New(loadConfig())
		fp, err := ensureCached(svc, args[0])
		if err != nil {
			fatalServiceErr(err)
		}

		var cursor *service.QueryCursor
		if cursorFlag != "" {
			cursor = &service.QueryCursor{}
			if err := json.Unmarshal([]byte(cursorFlag), cursor); err != nil {
				fatalServiceErr(err)
			}
		}

		resp, err := svc.QueryLogcatV2(context.Background(), fp, buildFilters(cmd), cursor, limitFlag, directionFlag)
		if err != nil {
			fatalServiceErr(err)
		}
		printQueryResponse(resp, formatFlag)
	},
}

func init() {
	queryCmd.Flags().StringVar(&cursorFlag, "cursor", "", `Cursor JSON echoed from a prior response's nextCursor/prevCursor, e.g. '{"position":10,"direction":"forward","filterHash":123}'`)
	queryCmd.Flags().IntVar(&limitFlag, "limit", 100, "Maximum rows to return (at most 1000; 0 or less uses 100)")
	queryCmd.Flags().StringVar(&directionFlag, "direction", "forward", "forward or backward; ignored when --cursor is set")
	queryCmd.Flags().StringVar(&formatFlag, "format", "json", "json or table")
}
