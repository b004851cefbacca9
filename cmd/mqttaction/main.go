package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mqttaction/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

func main() {
	// A missing .env is normal
	_ = godotenv.Load()

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mqttaction",
		Short: "Turn MQTT messages into local actions",
		Long: `mqttaction keeps one connection to an MQTT broker, follows changes of its
connection settings, and opens URLs or shows text for every fresh message
published to the configured topic.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), configPath)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(),
		"configuration file (env CONFIG_FILE)")

	root.AddCommand(
		runCmd(),
		setCmd(),
		showCmd(),
		probeCmd(),
		sendCmd(),
		versionCmd(),
	)
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the connection supervisor and dispatcher (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), configPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mqttaction %s\n", version)
		},
	}
}
