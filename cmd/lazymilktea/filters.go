package lazymilktea

import (
	"github.com/spf13/cobra"

	"github.com/mochibug/lazymilktea/service"
)

// Filter flag variables, shared by stats/query/jump-to-time. Cobra's
// flag binding wants package-level vars, the same pattern root.go's
// predecessor used for its own --begin/--end/--dbname set.
var (
	tsFromFlag        string
	tsToFlag          string
	levelsFlag        []string
	tagFlag           string
	pidFlag           int32
	tidFlag           int32
	textFlag          string
	notTextFlag       string
	textModeFlag      string
	caseSensitiveFlag bool

	// formatFlag selects "json" (default) or "table" output; bound by
	// each of stats/query/jump-to-time individually.
	formatFlag string
)

func registerFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tsFromFlag, "ts-from", "", "Only rows at/after this local time (YYYY-MM-DD HH:MM:SS)")
	cmd.Flags().StringVar(&tsToFlag, "ts-to", "", "Only rows at/before this local time (YYYY-MM-DD HH:MM:SS)")
	cmd.Flags().StringSliceVar(&levelsFlag, "level", nil, "Restrict to these levels (V,D,I,W,E,F), may repeat")
	cmd.Flags().StringVar(&tagFlag, "tag", "", "Tag match, '|' separated for OR")
	cmd.Flags().Int32Var(&pidFlag, "pid", 0, "Restrict to this pid")
	cmd.Flags().Int32Var(&tidFlag, "tid", 0, "Restrict to this tid")
	cmd.Flags().StringVar(&textFlag, "text", "", "Message substring or pattern, '|' separated for OR in plain mode")
	cmd.Flags().StringVar(&notTextFlag, "not-text", "", "Exclude messages containing this substring")
	cmd.Flags().StringVar(&textModeFlag, "text-mode", "plain", "plain or regex")
	cmd.Flags().BoolVar(&caseSensitiveFlag, "case-sensitive", false, "Case-sensitive text matching")
}

// buildFilters assembles a service.LogFilters from the flags registered
// on cmd, leaving pid/tid nil unless the caller actually passed them.
func buildFilters(cmd *cobra.Command) service.LogFilters {
	f := service.LogFilters{
		TsFrom:        tsFromFlag,
		TsTo:          tsToFlag,
		Levels:        levelsFlag,
		Tag:           tagFlag,
		Text:          textFlag,
		NotText:       notTextFlag,
		TextMode:      textModeFlag,
		CaseSensitive: caseSensitiveFlag,
	}
	if cmd.Flags().Changed("pid") {
		p := pidFlag
		f.Pid = &p
	}
	if cmd.Flags().Changed("tid") {
		t := tidFlag
		f.Tid = &t
	}
	return f
}
