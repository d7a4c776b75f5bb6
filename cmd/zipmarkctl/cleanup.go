package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/infra/locks"
	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/cordum/zipmark/core/staging"
)

func runCleanupCmd(args []string) {
	cfg := config.Load()
	fs := newFlagSet("cleanup")
	root := fs.String("root", cfg.StagingDir, "staging root")
	olderThan := fs.Duration("older-than", cfg.StagingRetention, "only remove customer dirs idle this long")
	fs.ParseArgs(args)

	var store locks.Store
	redisStore, err := locks.NewRedisStore(*fs.redis)
	if err != nil {
		logging.Warn("zipmarkctl", "redis unavailable, using local locks", "error", err)
		store = locks.NewLocalStore()
	} else {
		defer redisStore.Close()
		store = redisStore
	}
	removed, err := sweep(context.Background(), *root, *olderThan, store)
	check(err)
	fmt.Printf("removed %d customer directories\n", removed)
}

func sweep(ctx context.Context, root string, olderThan time.Duration, store locks.Store) (int, error) {
	stager := staging.NewStager(root, store, 0)
	return staging.NewJanitor(stager, olderThan, time.Hour, nil).Sweep(ctx)
}
