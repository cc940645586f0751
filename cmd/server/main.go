// jobq Server - Centralized Job Queue Broker
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nuulab/jobq/pkg/api"
	"github.com/nuulab/jobq/pkg/broker"
	"github.com/nuulab/jobq/pkg/events"
	"github.com/nuulab/jobq/pkg/metrics"
)

func main() {
	// Command line flags
	bind := flag.String("bind", "0.0.0.0", "Bind address")
	port := flag.Int("port", 1337, "Broker port")
	monitorPort := flag.Int("monitor-port", 0, "Monitoring HTTP port (0 = disabled)")
	redisAddr := flag.String("redis", "", "Redis/DragonflyDB address for the event mirror (optional)")
	verbose := flag.Bool("verbose", false, "Log every request and response line")
	flag.Parse()

	// Environment variable overrides
	if envPort := os.Getenv("JOBQ_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}
	if envMonitor := os.Getenv("JOBQ_MONITOR_PORT"); envMonitor != "" {
		fmt.Sscanf(envMonitor, "%d", monitorPort)
	}
	if envRedis := os.Getenv("JOBQ_REDIS"); envRedis != "" {
		*redisAddr = envRedis
	}

	// Banner
	printBanner()

	m := metrics.New()
	publisher := events.NewPublisher()

	// Mirror events to Redis if configured
	var store *events.RedisStore
	if *redisAddr != "" {
		var err error
		store, err = events.NewRedisStore(events.RedisConfig{Address: *redisAddr})
		if err != nil {
			log.Printf("⚠️  Event mirror connection failed: %v (continuing without mirror)", err)
		} else {
			publisher.Attach(store)
			log.Printf("✅ Mirroring events to %s", *redisAddr)
		}
	}

	server := broker.New(broker.Config{
		Addr:    fmt.Sprintf("%s:%d", *bind, *port),
		Verbose: *verbose,
		Metrics: m,
		Events:  publisher,
	})

	// Monitoring API
	var monitor *api.Server
	if *monitorPort != 0 {
		monitor = api.NewServer(api.Config{
			State:   server.State(),
			Metrics: m,
		})
		publisher.Attach(monitor.Hub())

		go func() {
			log.Printf("📊 Monitoring API on http://localhost:%d", *monitorPort)
			if err := monitor.Start(*monitorPort); err != nil {
				log.Printf("⚠️  Monitoring API stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("\n🛑 Shutting down...")
		server.Close()
		if monitor != nil {
			monitor.Stop(context.Background())
		}
		if store != nil {
			store.Close()
		}
	}()

	log.Printf("🚀 Broker listening on %s:%d", *bind, *port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Broker error: %v", err)
	}
}

func printBanner() {
	fmt.Println(`
    _       _
   (_) ___ | |__   __ _
   | |/ _ \| '_ \ / _' |
   | | (_) | |_) | (_| |
  _/ |\___/|_.__/ \__, |
 |__/                |_|

  Centralized Job Queue Broker
  `)
}
