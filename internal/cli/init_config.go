package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noni/smptweaks/internal/config"
)

// InitConfigCmd returns the init-config command
func InitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default config file unless one exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			written, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !written {
				fmt.Fprintf(out, "%s %s already exists, left untouched\n", color.New(color.FgYellow).Sprint("⚠"), path)
				return nil
			}
			fmt.Fprintf(out, "%s wrote %s\n", color.New(color.FgGreen).Sprint("✓"), path)
			return nil
		},
	}
}
