package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/cordum/zipmark/core/infra/buildinfo"
	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/worker"
)

func main() {
	cfg := config.Load()
	buildinfo.Log("zipmark-worker",
		"nats", cfg.NatsURL,
		"jetstream", cfg.UseJetStream,
		"staging_dir", cfg.StagingDir,
		"rules_file", cfg.RulesPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx, cfg); err != nil {
		log.Fatalf("zipmark worker: %v", err)
	}
	log.Println("zipmark worker stopped")
}
