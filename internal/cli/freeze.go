package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rootstrap/internal/app"
)

type freezeOptions struct {
	Output       string
	Format       string
	Backend      string
	Architecture string
	Suite        string
	QemuBinary   string
}

func newFreezeCommand() *cobra.Command {
	opts := freezeOptions{}
	cmd := &cobra.Command{
		Use:   "freeze <rootfs|size-report>",
		Short: "Capture the installed package set as a manifest",
		Long: "Freeze reads either a bootstrapped rootfs or a previously written " +
			"size report and records the exact package versions as a manifest " +
			"that a later bootstrap can replay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFreeze(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Manifest output path (default: stdout)")
	cmd.Flags().StringVar(&opts.Format, "format", "yaml", "Output format (yaml|text)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "none", "Isolation backend for live queries")
	cmd.Flags().StringVar(&opts.Architecture, "architecture", "", "Architecture recorded in the manifest")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "Suite recorded in the manifest")
	cmd.Flags().StringVar(&opts.QemuBinary, "qemu-binary", "", "Emulation binary for cross-architecture rootfs")

	_ = viper.BindPFlag("freeze_format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("backend", cmd.Flags().Lookup("backend"))

	return cmd
}

func runFreeze(cmd *cobra.Command, opts freezeOptions, input string) error {
	service := app.NewService()
	result, err := service.Freeze(cmd.Context(), app.FreezeRequest{
		Input:        input,
		OutputPath:   opts.Output,
		Format:       resolveString(cmd, opts.Format, "freeze_format", "format"),
		Backend:      resolveString(cmd, opts.Backend, "backend", "backend"),
		Architecture: opts.Architecture,
		Suite:        opts.Suite,
		QemuBinary:   opts.QemuBinary,
	})
	if err != nil {
		return err
	}
	if opts.Output == "" {
		for _, pkg := range result.Manifest.Packages {
			fmt.Printf("%s=%s\n", pkg.Name, pkg.Version)
		}
		return nil
	}
	fmt.Printf("froze %d packages to %s\n", len(result.Manifest.Packages), result.OutputPath)
	return nil
}
