// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command orc runs the single-operator code-agent orchestrator: the event
// log, runtime state, scheduler, tool adapters, and coordinator, plus a
// read-only status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"orc/internal/adapter"
	"orc/internal/adapter/toola"
	"orc/internal/adapter/toolb"
	"orc/internal/adapter/toolc"
	"orc/internal/config"
	"orc/internal/coordinator"
	"orc/internal/eventlog"
	"orc/internal/joblog"
	"orc/internal/logx"
	"orc/internal/projectstore"
	"orc/internal/runtimestate"
	"orc/internal/scheduler"
	"orc/internal/statusapi"
)

var version = "0.1"

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect orc.hjson/orc.json)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.Parse()

	if showVersion {
		fmt.Printf("orc %s\n", version)
		return
	}

	if configPath == "" {
		found, err := config.Find()
		if err != nil {
			log.Fatalf("orc: %v", err)
		}
		configPath = found
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("orc: %v", err)
	}

	switch cfg.Logging.Level {
	case "debug":
		logx.SetMinLevel(logx.LevelDebug)
	case "warn":
		logx.SetMinLevel(logx.LevelWarn)
	case "error":
		logx.SetMinLevel(logx.LevelError)
	default:
		logx.SetMinLevel(logx.LevelInfo)
	}
	mainLog := logx.New("main")
	mainLog.Info("starting orc, config=%s data_dir=%s", configPath, cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("orc: mkdir data dir: %v", err)
	}

	state := runtimestate.New()
	store, err := eventlog.Open(cfg.DataDir, state)
	if err != nil {
		log.Fatalf("orc: open event log: %v", err)
	}
	defer store.Close()

	coordinator.CrossCheckStalePIDs(cfg.DataDir)

	projects, err := projectstore.Open(filepath.Join(cfg.DataDir, "config.json"), cfg.OwnerID)
	if err != nil {
		log.Fatalf("orc: open project store: %v", err)
	}
	defer projects.Close()
	if err := projects.Watch(); err != nil {
		mainLog.Warn("project store watch disabled: %v", err)
	}

	adapters := map[string]adapter.Adapter{
		"A": toola.New(cfg.Tools.ABinary),
		"B": toolb.New(cfg.Tools.BBinary),
		"C": toolc.New(cfg.Tools.CBinary),
	}

	sched := scheduler.New()
	coord := coordinator.New(store, state, sched, projects, adapters, cfg.DataDir)

	statusSrv := statusapi.New(state, sched, cfg.OwnerID, cfg.Status.BearerSecret)
	coord.SetHooks(statusSrv.Hooks())

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.Status.ListenAddr,
		Handler: statusSrv.Router(),
	}
	go func() {
		mainLog.Info("status API listening on %s", cfg.Status.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLog.Error("status API: %v", err)
		}
	}()

	go pruneLoop(ctx, cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	mainLog.Info("shutdown signal received, waiting for idle")

	idleCtx, idleCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := coord.WaitForIdle(idleCtx); err != nil {
		mainLog.Warn("shutdown proceeding without full idle: %v", err)
	}
	idleCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	cancel()
	if err := store.Snapshot(); err != nil {
		mainLog.Error("final snapshot failed: %v", err)
	}
	mainLog.Info("orc stopped")
}

// pruneLoop periodically sweeps old job logs off disk.
func pruneLoop(ctx context.Context, dataDir string) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	log := logx.New("joblog")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := joblog.Prune(dataDir, 7*24*time.Hour)
			if err != nil {
				log.Warn("prune failed: %v", err)
			} else if n > 0 {
				log.Info("pruned %d old job logs", n)
			}
		}
	}
}
