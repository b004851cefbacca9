package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mqttaction/internal/config"
	"mqttaction/internal/gate"
	applog "mqttaction/internal/log"
	"mqttaction/internal/mqtt"
	"mqttaction/pkg/types"
)

// probeCmd connects once, subscribes, and prints decoded messages. It is the
// quickest way to check broker settings without running actions.
func probeCmd() *cobra.Command {
	var (
		count   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect once and print incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForTesting(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			applog.Configure(applog.Config{Level: cfg.Logging.Level, Format: "console", Version: version})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := mqtt.NewClient(mqtt.Options{
				Config:   cfg.MQTT.Connection,
				ClientID: mqtt.NewClientID(cfg.MQTT.ClientIDPrefix),
				Logger:   applog.WithComponent("probe"),
			})
			if err != nil {
				return err
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() {
				dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer dcancel()
				_ = client.Disconnect(dctx)
			}()

			out := cmd.OutOrStdout()
			received := make(chan struct{}, count)
			handler := func(topic string, payload []byte) {
				msg, err := gate.Decode(payload)
				if err != nil {
					fmt.Fprintf(out, "malformed on %s: %v\n", topic, err)
					return
				}
				fmt.Fprintf(out, "Topic:     %s\nText:      %s\nTimestamp: %s (age %s)\n---\n",
					topic, msg.Text, msg.CreatedAt().Format(time.RFC3339), msg.Age(time.Now()).Round(time.Millisecond))
				select {
				case received <- struct{}{}:
				default:
				}
			}

			topic := cfg.MQTT.Connection.Topic
			if err := client.Subscribe(ctx, topic, cfg.MQTT.QoS, handler); err != nil {
				return err
			}
			fmt.Fprintf(out, "Connected to %s:%d, waiting for %d messages on %s (timeout %s)...\n",
				cfg.MQTT.Connection.Host, cfg.MQTT.Connection.Port, count, topic, timeout)

			for i := 0; i < count; i++ {
				select {
				case <-received:
				case <-ctx.Done():
					fmt.Fprintf(out, "Timeout reached after %d messages\n", i)
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 3, "messages to wait for")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait")
	return cmd
}

// sendCmd publishes one message in the wire format, stamped with the
// current time.
func sendCmd() *cobra.Command {
	var (
		topic    string
		retained bool
	)

	cmd := &cobra.Command{
		Use:   "send TEXT",
		Short: "Publish a message to the configured topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForTesting(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if topic == "" {
				topic = cfg.MQTT.Connection.Topic
			}

			payload, err := gate.Encode(types.InboundMessage{Text: args[0], Timestamp: time.Now().UnixMilli()})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, err := mqtt.NewClient(mqtt.Options{
				Config:   cfg.MQTT.Connection,
				ClientID: mqtt.NewClientID(cfg.MQTT.ClientIDPrefix),
				Logger:   applog.Discard(),
			})
			if err != nil {
				return err
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = client.Disconnect(context.Background()) }()

			if err := client.Publish(ctx, topic, payload, cfg.MQTT.QoS, retained); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s: %s\n", topic, payload)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "topic to publish to (default: configured topic)")
	cmd.Flags().BoolVar(&retained, "retained", false, "publish as retained message")
	return cmd
}
