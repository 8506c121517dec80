package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rootstrap/internal/app"
)

type reportOptions struct {
	SortBySize    bool
	HumanReadable bool
}

func newReportCommand() *cobra.Command {
	opts := reportOptions{}
	cmd := &cobra.Command{
		Use:   "report <size-report>",
		Short: "Render a package size report as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := app.NewService()
			result, err := service.Report(cmd.Context(), app.ReportRequest{
				ReportPath:    args[0],
				SortBySize:    opts.SortBySize,
				HumanReadable: opts.HumanReadable,
			})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.SortBySize, "size", "s", false, "Sort by installed size instead of name")
	cmd.Flags().BoolVarP(&opts.HumanReadable, "human", "H", false, "Human-readable sizes")
	return cmd
}
