package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mqttaction/internal/config"
	"mqttaction/internal/settings"
	"mqttaction/pkg/types"
	"mqttaction/pkg/validation"
)

const maskedSecret = "********"

func setCmd() *cobra.Command {
	var (
		host, topic, username, password string
		port                            int
		tlsEnabled                      bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the persisted connection settings",
		Long: `set updates the mqtt section of the configuration file. Only the flags
given are changed. A running mqttaction picks the change up: a new host,
port, credential or TLS setting reconnects, a new topic only resubscribes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := settings.NewFileSource(configPath)
			if err != nil {
				return err
			}

			next := source.Current()
			flags := cmd.Flags()
			if flags.Changed("host") {
				next.Host = validation.SanitizeHost(host)
			}
			if flags.Changed("port") {
				if port < 1 || port > 65535 {
					return fmt.Errorf("port must be between 1 and 65535")
				}
				next.Port = uint16(port)
			}
			if flags.Changed("topic") {
				next.Topic = topic
			}
			if flags.Changed("username") {
				next.Username = validation.SanitizeUsername(username)
			}
			if flags.Changed("password") {
				next.Password = validation.SanitizePassword(password)
			}
			if flags.Changed("tls") {
				next.TLS.Enabled = tlsEnabled
			}

			if err := validation.ValidateMQTTBroker(next.Host, int(next.Port)); err != nil {
				return fmt.Errorf("invalid broker: %w", err)
			}
			if err := validation.ValidateTopicFilter(next.Topic); err != nil {
				return fmt.Errorf("invalid topic: %w", err)
			}

			if next == source.Current() {
				fmt.Fprintln(cmd.OutOrStdout(), "settings unchanged")
				return nil
			}
			if err := source.Update(next); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settings written to %s\n", source.Path())
			return printConnection(cmd.OutOrStdout(), source.Current())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "broker host")
	cmd.Flags().IntVar(&port, "port", types.DefaultPort, "broker port")
	cmd.Flags().StringVar(&topic, "topic", "", "topic filter to subscribe to")
	cmd.Flags().StringVar(&username, "username", "", "username (empty disables authentication)")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().BoolVar(&tlsEnabled, "tls", false, "connect with TLS (ssl://)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForTesting(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath)
			return printConfig(cmd.OutOrStdout(), maskConfig(*cfg))
		},
	}
}

// maskConfig hides every password in cfg.
func maskConfig(cfg types.Config) types.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = maskedSecret
		}
	}
	mask(&cfg.MQTT.Connection.Password)
	mask(&cfg.MQTT.Connection.TLS.TruststorePassword)
	mask(&cfg.MQTT.Connection.TLS.KeystorePassword)
	mask(&cfg.Journal.Security.TruststorePassword)
	mask(&cfg.Journal.Security.KeystorePassword)
	return cfg
}

func printConfig(w io.Writer, cfg types.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func printConnection(w io.Writer, conn types.ConnectionConfig) error {
	var cfg types.Config
	cfg.MQTT.Connection = conn
	masked := maskConfig(cfg)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]types.ConnectionConfig{"mqtt": masked.MQTT.Connection}); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return enc.Close()
}
