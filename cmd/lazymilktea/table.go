package lazymilktea

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mochibug/lazymilktea/query"
	"github.com/mochibug/lazymilktea/service"
)

const maxBarWidth = 40

var levelOrder = []string{"V", "D", "I", "W", "E", "F"}

// terminalWidth detects the controlling terminal's width, falling back
// to a fixed 120 columns when stdout isn't a terminal (piped output,
// CI) — the same fallback the table formatter this was adapted from
// used.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 120
	}
	return w
}

// printRowsTable renders one page of query rows as a fixed-column,
// terminal-width-aware table, truncating the message column to fit
// rather than wrapping.
func printRowsTable(rows []query.RowView) {
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return
	}

	const bold, reset = "\033[1m", "\033[0m"
	width := terminalWidth()
	fixed := len("2006-01-02 15:04:05.000") + 1 + 5 + 1 + 20 + 1 + 12 + 1
	msgWidth := width - fixed
	if msgWidth < 20 {
		msgWidth = 20
	}

	fmt.Printf("%s%-23s %-5s %-20s %8s/%-8s %s%s\n", bold, "TIMESTAMP", "LEVEL", "TAG", "PID", "TID", "MESSAGE", reset)
	for _, r := range rows {
		msg := r.Msg
		if len(msg) > msgWidth {
			msg = msg[:msgWidth-1] + "…"
		}
		fmt.Printf("%-23s %-5s %-20s %8d/%-8d %s\n", r.TsRaw, r.Level, r.Tag, r.Pid, r.Tid, msg)
	}
}

// printLevelHistogram renders a proportional bar chart of level counts,
// longest bar scaled to maxBarWidth, adapted from the query-load
// histogram's bucket-scaling arithmetic (time buckets there, levels
// here).
func printLevelHistogram(counts map[string]int64) {
	var maxCount int64
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		fmt.Println("(no rows)")
		return
	}

	for _, level := range levelOrder {
		c := counts[level]
		barLen := 0
		if c > 0 {
			barLen = int(float64(c) / float64(maxCount) * maxBarWidth)
			if barLen == 0 {
				barLen = 1
			}
		}
		fmt.Printf("%-2s %8d %s\n", level, c, strings.Repeat("█", barLen))
	}
}

func printStats(stats service.LogcatStats, format string) {
	if format != "table" {
		printJSON(stats)
		return
	}
	fmt.Printf("total rows: %d   malformed: %d\n", stats.TotalRows, stats.Malformed)
	if stats.MinTsDisplay != "" {
		fmt.Printf("range: %s .. %s\n", stats.MinTsDisplay, stats.MaxTsDisplay)
	}
	printLevelHistogram(stats.LevelCounts)
}

func printQueryResponse(resp service.QueryResponse, format string) {
	if format != "table" {
		printJSON(resp)
		return
	}
	printRowsTable(resp.Rows)
	fmt.Printf("hasMoreNext=%v hasMorePrev=%v", resp.HasMoreNext, resp.HasMorePrev)
	if resp.EstimatedTotal != nil {
		fmt.Printf(" estimatedTotal=%d", *resp.EstimatedTotal)
	}
	fmt.Println()
}
