package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	devservercmd "github.com/louisbranch/initiative.watch/internal/cmd/devserver"
)

func main() {
	cfg, err := devservercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DEVSERVER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := devservercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
