// printconnect runs the print kiosk: it shows a rotating access code on the
// kiosk screen and prints PDFs uploaded with that code.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/orrn/printconnect/internal/api"
	"github.com/orrn/printconnect/internal/api/middleware"
	"github.com/orrn/printconnect/internal/config"
	"github.com/orrn/printconnect/internal/core"
	"github.com/orrn/printconnect/internal/db"
	"github.com/orrn/printconnect/internal/emitter"
	"github.com/orrn/printconnect/internal/logger"
	"github.com/orrn/printconnect/internal/webhook"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var port int
	var showVersion bool

	flagSet := pflag.NewFlagSet("printconnect", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config file")
	flagSet.IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("printconnect", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if port != 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.Info("configuration loaded", "path", configPath, "version", version)

	storage, err := core.NewDiskStorage(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}
	if n, err := storage.Sweep(); err != nil {
		slog.Warn("failed to sweep upload dir", "dir", storage.Dir(), "error", err)
	} else if n > 0 {
		slog.Info("removed leftover job files", "count", n)
	}

	credentials, err := core.NewCredentialState(core.RandomGenerator{})
	if err != nil {
		return err
	}

	deps := api.Deps{Config: cfg}
	var stats core.StatsRecorder

	if cfg.Database.Path != "" {
		database, err := db.Open(db.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer database.Close()

		auth, err := middleware.NewAuthMiddleware(context.Background(), database.Settings)
		if err != nil {
			return fmt.Errorf("failed to initialize operator auth: %w", err)
		}
		deps.Auth = auth
		deps.Counters = database.Counters
		stats = database.Counters
	} else {
		slog.Warn("database disabled, operator API and stats unavailable")
	}

	var senders core.EventSenders
	if len(cfg.Webhooks) > 0 {
		endpoints := make([]webhook.Endpoint, 0, len(cfg.Webhooks))
		for _, w := range cfg.Webhooks {
			endpoints = append(endpoints, webhook.Endpoint{
				Name:   w.Name,
				URL:    w.URL,
				Secret: w.Secret,
				Events: w.Events,
			})
		}
		sender := webhook.NewWebhookSender(webhook.WebhookConfig{Endpoints: endpoints})
		sender.Start()
		defer sender.Stop()
		senders = append(senders, sender)
	}

	if cfg.MQTT.Broker != "" {
		mqttEmitter := emitter.NewMQTTEmitter(emitter.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err := mqttEmitter.Connect(); err != nil {
			slog.Warn("mqtt unavailable, continuing without it", "error", err)
		}
		defer mqttEmitter.Disconnect()
		senders = append(senders, mqttEmitter)
	}

	var events core.EventSender
	if len(senders) > 0 {
		events = senders
	}

	primary := core.NewCommandPrimary(core.CommandSpec{
		Path: cfg.Printing.Primary.Path,
		Args: cfg.Printing.Primary.Args,
	})
	fallback := core.NewCommandFallback(core.CommandSpec{
		Path: cfg.Printing.Fallback.Path,
		Args: cfg.Printing.Fallback.Args,
	}, cfg.Printing.FallbackReap)

	dispatcher := core.NewDispatcher(credentials, primary, fallback, core.DispatcherConfig{
		PrimaryTimeout:  cfg.Printing.PrimaryTimeout,
		SerializeDevice: cfg.Printing.SerializeDevice,
	})
	deps.Jobs = core.NewJobManager(credentials, core.NewIntake(credentials, storage), dispatcher, stats, events,
		core.JobManagerConfig{FallbackRetention: cfg.Storage.FallbackRetention})

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("kiosk server starting", "addr", srv.Addr)
		slog.Debug("initial otp", "otp", credentials.Current())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Printing.PrimaryTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}
