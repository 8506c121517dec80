package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rootstrap/internal/app"
)

type bootstrapOptions struct {
	Architecture     string
	Suite            string
	Backend          string
	AptPackages      []string
	Priorities       []string
	IncludeEssential bool
	AptSources       string
	HTTPProxy        string
	SkipUpdate       bool
	ExternalDebs     []string
	PipPackages      []string
	Wheelhouse       string
	Binds            []string
	ConfigureRetry   int
	SkipPhases       []string
	TerminateAfter   string
	SizeReport       string
	QemuBinary       string
	Manifest         string
}

func newBootstrapCommand() *cobra.Command {
	opts := bootstrapOptions{}
	cmd := &cobra.Command{
		Use:   "bootstrap <rootfs>",
		Short: "Bootstrap a rootfs from the configured package set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Architecture, "architecture", "", "Target dpkg architecture (default: host)")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "Target distribution suite (default: host)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "none", "Isolation backend (none|chroot|userns|proot)")
	cmd.Flags().StringSliceVar(&opts.AptPackages, "package", nil, "Explicit apt packages")
	cmd.Flags().StringSliceVar(&opts.Priorities, "priority", nil, "Priority classes to include")
	cmd.Flags().BoolVar(&opts.IncludeEssential, "essential", false, "Include essential packages")
	cmd.Flags().StringVar(&opts.AptSources, "sources", "", "Bootstrap sources list contents")
	cmd.Flags().StringVar(&opts.HTTPProxy, "http-proxy", "", "HTTP proxy for apt (default: autodetect)")
	cmd.Flags().BoolVar(&opts.SkipUpdate, "skip-update", false, "Skip the apt-get update step")
	cmd.Flags().StringSliceVar(&opts.ExternalDebs, "deb", nil, "External .deb files to install")
	cmd.Flags().StringSliceVar(&opts.PipPackages, "pip-package", nil, "Python packages to install")
	cmd.Flags().StringVar(&opts.Wheelhouse, "wheelhouse", "", "Wheel cache directory")
	cmd.Flags().StringSliceVar(&opts.Binds, "bind", nil, "Bind specs (source[:target])")
	cmd.Flags().IntVar(&opts.ConfigureRetry, "configure-retry", 2, "Maximum dpkg configure attempts")
	cmd.Flags().StringSliceVar(&opts.SkipPhases, "skip", nil, "Phases to skip")
	cmd.Flags().StringVar(&opts.TerminateAfter, "terminate-after", "", "Stop cleanly after the named phase")
	cmd.Flags().StringVar(&opts.SizeReport, "size-report", "", "Write the package size report here")
	cmd.Flags().StringVar(&opts.QemuBinary, "qemu-binary", "", "Emulation binary for cross-architecture runs")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "Frozen manifest to replay")

	_ = viper.BindPFlag("architecture", cmd.Flags().Lookup("architecture"))
	_ = viper.BindPFlag("suite", cmd.Flags().Lookup("suite"))
	_ = viper.BindPFlag("backend", cmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("packages", cmd.Flags().Lookup("package"))
	_ = viper.BindPFlag("priorities", cmd.Flags().Lookup("priority"))
	_ = viper.BindPFlag("essential", cmd.Flags().Lookup("essential"))
	_ = viper.BindPFlag("sources", cmd.Flags().Lookup("sources"))
	_ = viper.BindPFlag("http_proxy", cmd.Flags().Lookup("http-proxy"))
	_ = viper.BindPFlag("skip_update", cmd.Flags().Lookup("skip-update"))
	_ = viper.BindPFlag("external_debs", cmd.Flags().Lookup("deb"))
	_ = viper.BindPFlag("pip_packages", cmd.Flags().Lookup("pip-package"))
	_ = viper.BindPFlag("wheelhouse", cmd.Flags().Lookup("wheelhouse"))
	_ = viper.BindPFlag("binds", cmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("configure_retry", cmd.Flags().Lookup("configure-retry"))
	_ = viper.BindPFlag("skip_phases", cmd.Flags().Lookup("skip"))
	_ = viper.BindPFlag("terminate_after", cmd.Flags().Lookup("terminate-after"))
	_ = viper.BindPFlag("size_report", cmd.Flags().Lookup("size-report"))
	_ = viper.BindPFlag("qemu_binary", cmd.Flags().Lookup("qemu-binary"))
	_ = viper.BindPFlag("manifest", cmd.Flags().Lookup("manifest"))

	return cmd
}

func runBootstrap(ctx context.Context, cmd *cobra.Command, opts bootstrapOptions, rootfs string) error {
	service := app.NewService()
	result, err := service.Bootstrap(ctx, app.BootstrapRequest{
		Rootfs:           rootfs,
		Architecture:     resolveString(cmd, opts.Architecture, "architecture", "architecture"),
		Suite:            resolveString(cmd, opts.Suite, "suite", "suite"),
		Backend:          resolveString(cmd, opts.Backend, "backend", "backend"),
		AptPackages:      resolveStrings(cmd, opts.AptPackages, "packages", "package"),
		Priorities:       resolveStrings(cmd, opts.Priorities, "priorities", "priority"),
		IncludeEssential: resolveBool(cmd, opts.IncludeEssential, "essential", "essential"),
		AptSources:       resolveString(cmd, opts.AptSources, "sources", "sources"),
		HTTPProxy:        resolveString(cmd, opts.HTTPProxy, "http_proxy", "http-proxy"),
		SkipUpdate:       resolveBool(cmd, opts.SkipUpdate, "skip_update", "skip-update"),
		ExternalDebs:     resolveStrings(cmd, opts.ExternalDebs, "external_debs", "deb"),
		PipPackages:      resolveStrings(cmd, opts.PipPackages, "pip_packages", "pip-package"),
		Wheelhouse:       resolveString(cmd, opts.Wheelhouse, "wheelhouse", "wheelhouse"),
		Binds:            resolveStrings(cmd, opts.Binds, "binds", "bind"),
		ConfigureRetry:   resolveInt(cmd, opts.ConfigureRetry, "configure_retry", "configure-retry"),
		SkipPhases:       resolveStrings(cmd, opts.SkipPhases, "skip_phases", "skip"),
		TerminateAfter:   resolveString(cmd, opts.TerminateAfter, "terminate_after", "terminate-after"),
		SizeReportPath:   resolveString(cmd, opts.SizeReport, "size_report", "size-report"),
		QemuBinary:       resolveString(cmd, opts.QemuBinary, "qemu_binary", "qemu-binary"),
		ManifestPath:     resolveString(cmd, opts.Manifest, "manifest", "manifest"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("bootstrapped: %s (%d packages)\n", result.Rootfs, result.PackageCount)
	return nil
}
