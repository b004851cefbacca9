package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"mqttaction/internal/config"
	"mqttaction/internal/dispatch"
	"mqttaction/internal/journal"
	applog "mqttaction/internal/log"
	"mqttaction/internal/metrics"
	"mqttaction/internal/settings"
	"mqttaction/internal/supervisor"
)

// runService wires settings, supervisor, dispatcher, journal and metrics and
// runs them until SIGINT or SIGTERM.
func runService(parent context.Context, path string) error {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	applog.Configure(applog.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Version: version,
	})
	logger := applog.WithComponent("main")
	logger.Info().
		Str("event", "startup").
		Str("config", path).
		Str("broker", fmt.Sprintf("%s:%d", cfg.MQTT.Connection.Host, cfg.MQTT.Connection.Port)).
		Str("topic", cfg.MQTT.Connection.Topic).
		Bool("journal", cfg.Journal.Enabled).
		Msg("configuration loaded")

	source, err := settings.NewFileSource(path, settings.WithFileLogger(applog.WithComponent("settings")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var jr dispatch.Journal
	if cfg.Journal.Enabled {
		w, err := journal.NewKafkaWriter(cfg.Journal)
		if err != nil {
			return fmt.Errorf("failed to create journal writer: %w", err)
		}
		j := journal.New(cfg.Journal, w, applog.WithComponent("journal"), journal.WithMetrics(metrics.Prometheus{}))
		g.Go(func() error { return j.Run(ctx) })
		jr = j
	}

	sup := supervisor.New(source,
		supervisor.WithLogger(applog.WithComponent("supervisor")),
		supervisor.WithQoS(cfg.MQTT.QoS),
		supervisor.WithClientIDPrefix(cfg.MQTT.ClientIDPrefix),
		supervisor.WithMetrics(metrics.Prometheus{}),
	)

	d := dispatch.New(dispatch.Config{
		MaxAge:  cfg.Dispatch.MaxAge,
		Actions: dispatch.NewSystemActions(cfg.Dispatch.OpenURLs, cfg.Dispatch.PopupCommand, applog.WithComponent("actions")),
		Journal: jr,
		Metrics: metrics.Prometheus{},
		Logger:  applog.WithComponent("dispatch"),
	})

	// Subscribe before starting so the first messages are not missed
	states := sup.States(ctx)
	messages := sup.Messages(ctx)
	sup.Start(ctx)

	g.Go(func() error { return source.Run(ctx) })
	g.Go(func() error { return d.Run(ctx, states, messages) })
	g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Listen, applog.WithComponent("metrics")) })
	g.Go(func() error {
		<-ctx.Done()
		sup.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info().Str("event", "shutdown").Msg("mqttaction stopped")
	return err
}
