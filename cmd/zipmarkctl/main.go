package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cordum/zipmark/core/infra/buildinfo"
	"github.com/cordum/zipmark/core/infra/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "apply":
		runApplyCmd(args)
	case "root":
		runRootCmd(args)
	case "render":
		runRenderCmd(args)
	case "rules":
		runRulesCmd(args)
	case "receipt":
		runReceiptCmd(args)
	case "cleanup":
		runCleanupCmd(args)
	case "version":
		fmt.Println(buildinfo.Info())
	default:
		usage()
		os.Exit(1)
	}
}

type flagSet struct {
	*flag.FlagSet
	redis *string
}

func newFlagSet(name string) *flagSet {
	cfg := config.Load()
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	redis := fs.String("redis", cfg.RedisURL, "redis url (default from REDIS_URL)")
	return &flagSet{FlagSet: fs, redis: redis}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`zipmarkctl - per-recipient zip watermarking

Usage:
  zipmarkctl apply --rules rules.yaml --in src.zip --out dst.zip --customer N --payment N
                   [--license KEY] [--download N] [--item ID] [--dry-run]
  zipmarkctl root <archive.zip>
  zipmarkctl render --template TEXT [--license KEY] [--customer N] [--payment N] [--download N]
  zipmarkctl rules push --file rules.yaml [--prune]
  zipmarkctl rules show [--item ID]
  zipmarkctl rules export [--out rules.yaml]
  zipmarkctl receipt show <receipt_id>
  zipmarkctl receipt list --customer N [--limit N]
  zipmarkctl cleanup [--root DIR] [--older-than DURATION]
  zipmarkctl version

Global flags:
  --redis   Redis URL (default from REDIS_URL)
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
