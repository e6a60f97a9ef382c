package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orrn/printerd/internal/api"
	"github.com/orrn/printerd/internal/api/middleware"
	"github.com/orrn/printerd/internal/blob"
	"github.com/orrn/printerd/internal/config"
	"github.com/orrn/printerd/internal/core"
	"github.com/orrn/printerd/internal/db"
	"github.com/orrn/printerd/internal/device"
	"github.com/orrn/printerd/internal/logging"
	"github.com/orrn/printerd/internal/mqtt"
	"github.com/orrn/printerd/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// transport is the surface shared by the broker client and the loopback.
type transport interface {
	Connect() error
	Disconnect()
	Subscribe(topic string, handler core.MessageHandler) error
	Publish(topic string, payload []byte) error
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	simulated := cfg.Simulated()
	if simulated {
		log.Warn("no device certificates found, starting in simulated mode")
	}

	if err := db.Init(db.Config{Path: cfg.Storage.DBPath}); err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	retention := db.NewRetention(cfg.Storage.HistoryDays, log)
	retention.Start()

	var trans transport
	if simulated {
		trans = mqtt.NewLoopback(log)
	} else {
		client, err := mqtt.NewClient(mqtt.Options{
			Endpoint: cfg.AWS.IoTEndpoint,
			ClientID: mqtt.NewClientID(cfg.Printer.ID),
			CertPath: cfg.AWS.CertPath,
			KeyPath:  cfg.AWS.KeyPath,
			CAPath:   cfg.AWS.CAPath,
		}, log)
		if err != nil {
			log.Error("failed to build mqtt client", "error", err)
			os.Exit(1)
		}
		trans = client
	}
	if err := trans.Connect(); err != nil {
		log.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}

	var fetcher core.FileFetcher
	if simulated {
		fetcher = blob.NewStubFetcher(cfg.Storage.DownloadDir, log)
	} else {
		s3Fetcher, err := blob.NewS3Fetcher(context.Background(), cfg.AWS.Region, cfg.Storage.DownloadDir, log)
		if err != nil {
			log.Error("failed to build s3 fetcher", "error", err)
			os.Exit(1)
		}
		fetcher = s3Fetcher
	}

	publisher := telemetry.NewPublisher(trans, cfg.Printer.ID, cfg.Telemetry.QueueSize, log)
	publisher.Start()

	agent := core.NewAgent(core.AgentOptions{
		PrinterID:      cfg.Printer.ID,
		TickInterval:   cfg.Job.TickInterval.Std(),
		TickProgress:   cfg.Job.TickProgress,
		StatusInterval: cfg.Telemetry.StatusInterval.Std(),
	}, device.NewSimulator(), fetcher, publisher, db.History, log)

	if err := agent.Start(trans); err != nil {
		log.Error("failed to start agent", "error", err)
		os.Exit(1)
	}

	var server *api.Server
	if cfg.Server.Enabled {
		auth, err := middleware.NewAuthMiddleware()
		if err != nil {
			log.Error("failed to initialize auth", "error", err)
			os.Exit(1)
		}
		server = api.NewServer(cfg.Server, agent, auth, log)
		server.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Stop(ctx); err != nil {
			log.Warn("ops api shutdown failed", "error", err)
		}
		cancel()
	}

	agent.Shutdown()
	publisher.Stop()
	trans.Disconnect()
	retention.Stop()

	if err := db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}

	log.Info("shutdown complete")
}
