package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"avmdis/internal/config"
)

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate JSON schema for configuration",
	Long:   "Generate JSON schema for avmdis.toml",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bts, err := config.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
