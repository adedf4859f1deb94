// frothwatch monitors flotation cell cameras, extracts froth surface
// features from the live streams and serves them over a dashboard and
// an optional telemetry uplink.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frothvision/frothwatch/internal/config"
	"github.com/frothvision/frothwatch/internal/log"
	"github.com/frothvision/frothwatch/pkg/analysis"
	"github.com/frothvision/frothwatch/pkg/features"
	"github.com/frothvision/frothwatch/pkg/stream"
	"github.com/frothvision/frothwatch/pkg/telemetry"
	"github.com/frothvision/frothwatch/pkg/web"
)

func main() {
	configPath := flag.String("config", "frothwatch.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "frothwatch: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	if len(cfg.Cameras) == 0 {
		log.Error("no cameras configured")
		os.Exit(1)
	}

	manager := stream.NewManager()
	manager.Initialize(cfg.Cameras)

	var publisher *telemetry.Publisher
	if cfg.Telemetry.Enabled {
		publisher = telemetry.NewPublisher(cfg.Telemetry)
	}

	// The worker's record sink fans out to the dashboard and the
	// uplink; the server is wired in below, before any frame flows.
	var server *web.Server
	worker := analysis.NewWorker(func(rec features.Record) {
		server.HandleRecord(rec)
		if publisher != nil {
			publisher.HandleRecord(rec)
		}
	})
	server = web.NewServer(cfg.ListenAddr, manager, worker)

	manager.RegisterConsumer(worker.HandleFrame)
	manager.RegisterConsumer(server.HandleFrame)
	manager.RegisterStatusConsumer(server.HandleStatus)
	if publisher != nil {
		manager.RegisterStatusConsumer(publisher.HandleStatus)
		publisher.Start()
	}

	server.StartAsync()
	manager.StartAll()
	log.Info("frothwatch running", "cameras", len(cfg.Cameras), "addr", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	manager.StopAll()
	worker.Close()
	if publisher != nil {
		publisher.Stop()
	}
	if err := server.Shutdown(); err != nil {
		log.Error("dashboard shutdown failed", "error", err)
	}
}
