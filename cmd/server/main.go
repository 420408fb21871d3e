package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "insight-gateway",
	Short: "Verified retrieval over customer, order and product data",
	Long: `insight-gateway loads customers, orders and products from CSV files,
validates and indexes them, and answers structured queries over HTTP or MCP.
Every answer carries the data generation it was computed from so claims can be
verified against the same data.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default ./configs/config.yaml)")
	rootCmd.AddCommand(serveCmd, mcpCmd, validateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
