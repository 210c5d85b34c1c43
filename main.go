package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/gilkh/livret/internal/cli"
	"github.com/gilkh/livret/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Init()

	if err := cli.Execute(context.Background()); err != nil {
		logging.ErrorWithComponent(logging.ComponentCLI, "Command failed", "error", err)
		os.Exit(1)
	}
}
