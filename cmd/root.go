package cmd

import (
	"os"

	"github.com/mlnlabs/mln/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mln",
	Short: "MLN ledger node CLI",
	Long:  "Command line interface for running and managing an MLN ledger node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
