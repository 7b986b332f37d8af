package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trendwatch",
		Short: "Detect topics gaining cross-platform attention before peak popularity",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(cycleCmd())
	root.AddCommand(topicsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one collect-score-alert cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle()
		},
	}
	return cmd
}

func topicsCmd() *cobra.Command {
	var (
		jsonOutput bool
		category   string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show current active topics and scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopics(jsonOutput, category, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().IntVar(&limit, "limit", 20, "max topics to show")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "server port")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "server port")
	return cmd
}
