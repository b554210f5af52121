package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sol/internal/sol"
)

const version = "0.1.0"

func main() {
	flags, err := sol.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if flags.Version {
		fmt.Println("sol", version)
		return
	}

	config, err := sol.LoadConfig(flags.ConfigPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	config.MergeFlags(flags)
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	sol.InitLogger(config)

	server := sol.NewServer(config)
	if err := server.Start(); err != nil {
		slog.Error("failed to start server", "err", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("received signal, shutting down", "signal", sig)

	server.Stop()
	slog.Info("shutdown complete")
}
