/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
silomq is the broker's entry point.

USAGE:
======

	silomq [options]

OPTIONS:
========

	-config string    Path to a JSON configuration file
	-broker-id string Broker identifier (overrides config/env)
	-port int         HTTP listen port (overrides config/env)
	-data-dir string  Data root directory (overrides config/env)
	-reboot           Delete the data root before starting
	-advertise        Advertise this broker over mDNS
	-admin-token string  Bearer token required by the admin WebSocket gateway
	-version          Show version information
	-help             Show this help message

STARTUP SEQUENCE:
=================
 1. Resolve configuration (defaults, file, env, flags)
 2. Prepare the on-disk layout (bootstrap)
 3. Open the ingress buffer, the configured topics, and the TPC map
 4. Start the broker dispatch loop
 5. Start the HTTP surface (ingress/register/consume/commit, /metrics,
    and the admin WebSocket gateway)
 6. Optionally advertise over mDNS
 7. Wait for SIGINT/SIGTERM and shut down
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"silomq/internal/adminauth"
	"silomq/internal/bootstrap"
	"silomq/internal/broker"
	"silomq/internal/config"
	"silomq/internal/discovery"
	"silomq/internal/httpapi"
	"silomq/internal/ingress"
	"silomq/internal/logging"
	"silomq/internal/metrics"
	"silomq/internal/topic"
	"silomq/internal/tpc"
	"silomq/internal/wsadmin"
	"silomq/pkg/cli"
)

const version = "0.1.0"

func printHelp() {
	fmt.Println("silomq - durable, topic-partitioned message broker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  silomq [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config string       Path to a JSON configuration file")
	fmt.Println("  -broker-id string    Broker identifier (overrides config/env)")
	fmt.Println("  -port int            HTTP listen port (overrides config/env)")
	fmt.Println("  -data-dir string     Data root directory (overrides config/env)")
	fmt.Println("  -reboot              Delete the data root before starting")
	fmt.Println("  -advertise           Advertise this broker over mDNS")
	fmt.Println("  -admin-token string  Bearer token required by the admin WebSocket gateway")
	fmt.Println("  -version             Show version information")
	fmt.Println("  -help, -h            Show this help message")
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "-help" || arg == "--help" || arg == "help" {
			printHelp()
			return
		}
		if arg == "-version" || arg == "--version" {
			fmt.Println("silomq", version)
			return
		}
	}

	// -config is consumed here, ahead of config.Load, since config.Load
	// needs the file path before it can merge file/env/flag layers.
	preflight := flag.NewFlagSet("silomq-preflight", flag.ContinueOnError)
	configPath := preflight.String("config", "", "path to a JSON configuration file")
	advertise := preflight.Bool("advertise", false, "advertise this broker over mDNS")
	adminToken := preflight.String("admin-token", "", "bearer token required by the admin WebSocket gateway")
	preflight.Bool("reboot", false, "delete the data root before starting")
	preflight.String("broker-id", "", "broker identifier")
	preflight.Int("port", 0, "HTTP listen port")
	preflight.String("data-dir", "", "data root directory")
	_ = preflight.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "silomq: loading configuration:", err)
		os.Exit(1)
	}

	cli.Header(fmt.Sprintf("silomq v%s", version))
	cli.KeyValue("brokerId", cfg.BrokerID)
	cli.KeyValue("port", cfg.Port)
	cli.KeyValue("dataDir", cfg.DataStorageVolume)
	cli.KeyValue("topics", len(cfg.Topics))

	logging.SetJSONMode(true)
	logger := logging.NewLogger("main")
	logger.Info("starting silomq", "version", version, "brokerId", cfg.BrokerID, "port", cfg.Port)

	layout, err := bootstrap.Prepare(cfg)
	if err != nil {
		logger.Fatal("bootstrap failed", "error", err)
	}

	ing, err := ingress.Open(layout.DataRoot, cfg.BrokerID, ingress.Options{})
	if err != nil {
		logger.Fatal("opening ingress buffer failed", "error", err)
	}

	topics := make(map[string]*topic.Topic, len(cfg.Topics))
	seeds := make([]tpc.TopicSeed, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		tp, err := topic.Open(bootstrap.TopicDir(layout, t.ID), t.ID, t.Partitions, 0)
		if err != nil {
			logger.Fatal("opening topic failed", "topicId", t.ID, "error", err)
		}
		topics[t.ID] = tp
		seeds = append(seeds, tpc.TopicSeed{TopicID: t.ID, PartitionCount: t.Partitions})
	}

	tpcMap, err := tpc.Open(layout.TPCLogPath, seeds)
	if err != nil {
		logger.Fatal("opening TPC map failed", "error", err)
	}

	b := broker.New(ing, topics, tpcMap)

	ctx, cancel := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(dispatchDone)
	}()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewServer(b))
	mux.Handle("/metrics", metrics.Get().Handler())

	var adminHash string
	if *adminToken != "" {
		adminHash, err = adminauth.Hash(*adminToken)
		if err != nil {
			logger.Fatal("hashing admin token failed", "error", err)
		}
	}
	guard := adminauth.NewGuard(adminHash)
	mux.Handle("/admin/ws", guard.Middleware(wsadmin.NewGateway(b)))

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		logger.Info("HTTP surface listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	var advertiser *discovery.Advertiser
	if *advertise {
		advertiser, err = discovery.Advertise(cfg.BrokerID, cfg.Port)
		if err != nil {
			logger.Error("mDNS advertise failed", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	cancel()
	<-dispatchDone

	if advertiser != nil {
		if err := advertiser.Shutdown(); err != nil {
			logger.Error("error stopping mDNS advertiser", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error stopping HTTP server", "error", err)
	}

	if err := ing.Close(); err != nil {
		logger.Error("error closing ingress buffer", "error", err)
	}
	for _, tp := range topics {
		if err := tp.Close(); err != nil {
			logger.Error("error closing topic", "topicId", tp.ID(), "error", err)
		}
	}
}
