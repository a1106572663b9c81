package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/rl1809/custody-ledger/internal/app"
	"github.com/rl1809/custody-ledger/internal/config"
	"github.com/rl1809/custody-ledger/internal/logger"
)

var configPath = flag.String("config", ".", "directory containing config.yaml")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	e := &env{open: openFromConfig, out: os.Stdout}
	for _, c := range commands(e) {
		commander.Register(c, "ledger")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func openFromConfig(ctx context.Context) (*app.Infra, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.Open(ctx, cfg)
}
