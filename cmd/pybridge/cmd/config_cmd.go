package cmd

import (
	"fmt"

	"pybridge/internal/config"

	"github.com/spf13/cobra"
)

func NewConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pybridge configuration",
	}
	configCmd.AddCommand(newConfigApplyCmd())
	return configCmd
}

func newConfigApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file>",
		Short: "Install a config file as the active configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := GetConfigFileFlag()
			if dst == "" {
				dst = config.DefaultConfigPath()
			}
			if err := config.ApplyFile(args[0], dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config applied to %s\n", dst)
			return nil
		},
	}
}
