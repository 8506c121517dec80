package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rootstrap/internal/app"
)

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <manifest>",
		Short: "Print the pin list a manifest resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := app.NewService()
			result, err := service.Replay(cmd.Context(), app.ReplayRequest{ManifestPath: args[0]})
			if err != nil {
				return err
			}
			for _, pin := range result.Packages {
				fmt.Println(pin)
			}
			return nil
		},
	}
}
