package main

import (
	"context"
	"os"

	"github.com/m0rik/panenap/internal/cli"
	"github.com/m0rik/panenap/internal/config"
)

func main() {
	cfg := config.DefaultConfig()
	r := cli.NewRunner(cfg.SocketPath, os.Stdout, os.Stderr)
	os.Exit(r.Run(context.Background(), os.Args[1:]))
}
