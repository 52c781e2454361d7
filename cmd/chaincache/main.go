package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/app/chaincache"
	"github.com/canopy-network/chaincache/pkg/utils"
)

func main() {
	configPath := flag.String("config", utils.Env("CHAINCACHE_CONFIG", ""), "path to a TOML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] <command> [args]\n%s\n", os.Args[0], chaincache.Usage)
	}
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := chaincache.Initialize(ctx, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = app.Run(ctx, flag.Args(), os.Stdout)
	app.Stop()
	if err != nil {
		app.Logger.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}
