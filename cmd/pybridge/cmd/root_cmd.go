package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pybridge",
		Short:         "Gateway bridge between a host process and an embedded Python runtime",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.pybridge/config.yaml)")
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewConfigCmd())
	return root
}

func GetConfigFileFlag() string {
	return configFile
}
