package main

import (
	"github.com/spf13/cobra"
)

var buildVersion = "dev"

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "goauthz",
		Short:         "goAuthz authorization service",
		Long:          "Runs and exercises the goAuthz authorization engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (yaml, json or toml). Every key can also be set via GOAUTHZ_* env vars.")

	load := func() (*appConfig, error) {
		return loadConfig(configFile)
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the goauthz version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s\n", buildVersion)
		},
	})
	root.AddCommand(newServeCommand(load))
	root.AddCommand(newEvaluateCommand())
	root.AddCommand(newLoadtestCommand())
	return root
}
