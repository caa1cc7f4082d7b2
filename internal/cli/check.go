package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noni/smptweaks/internal/app"
)

// CheckCmd returns the check command
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the configured store is reachable and has its table",
		Long: `Run the same startup sequence as serve (connect, verify the table, create
it when missing) and report the result.

Examples:
  smptweaks check                   # uses ./config.yml
  smptweaks check -c /etc/smp.yml   # explicit config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			kind, err := app.Check(cmd.Context(), *cfg, log)
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintf(out, "%s %s store: %v\n", color.New(color.FgRed).Sprint("✗"), kind, err)
				return fmt.Errorf("store check failed")
			}
			fmt.Fprintf(out, "%s %s store ready (table %s)\n", color.New(color.FgGreen).Sprint("✓"), kind, cfg.Store.TableName)
			return nil
		},
	}
	return cmd
}
