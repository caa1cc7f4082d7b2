package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noni/smptweaks/internal/app"
	"github.com/noni/smptweaks/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "smptweaks",
		Short:   "Player progression persistence for SMP servers",
		Version: app.Version,
		Long: `smptweaks keeps player levels, XP and reward cooldowns in an embedded
SQLite file or a networked PostgreSQL/MySQL database, and serves a small
admin API on top of them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "path to the YAML config file")

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.CheckCmd())
	rootCmd.AddCommand(cli.InitConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
