package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"rootstrap/internal/app"
)

func newConfigCommand() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dump {
				return dumpDefaults()
			}
			settings, err := yaml.Marshal(viper.AllSettings())
			if err != nil {
				return err
			}
			fmt.Print(string(settings))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the host-probed defaults as a config file")
	return cmd
}

// dumpDefaults emits a config file seeded with what a flag-less
// bootstrap would use on this host.
func dumpDefaults() error {
	service := app.NewService()
	arch, err := service.HostInfo.Architecture()
	if err != nil {
		return err
	}
	suite, err := service.HostInfo.Suite()
	if err != nil {
		return err
	}
	defaults := map[string]any{
		"architecture":    arch,
		"suite":           suite,
		"backend":         "none",
		"priorities":      []string{"required", "important", "standard"},
		"essential":       false,
		"http_proxy":      service.HostInfo.DetectAptProxy(),
		"configure_retry": 2,
		"log_level":       "info",
	}
	rendered, err := yaml.Marshal(defaults)
	if err != nil {
		return err
	}
	fmt.Print(string(rendered))
	return nil
}
