package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "cos",
		Short: "Chief of Staff - autonomous task orchestrator",
		Long: `Chief of Staff runs worker agents against two task queues on a
schedule you control. It maintains per-task-type intervals with per-app
overrides, gates risky work behind explicit approval, and learns duration
estimates from completed runs.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
