package main

import (
	"log/slog"
	"os"

	"binpatch/internal/binpatch/cmd"
	"binpatch/internal/binpatch/log"
)

func main() {
	log.Setup(os.Stderr, os.Getenv("BINPATCH_LOG_LEVEL") == "debug")

	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
		os.Exit(1)
	})

	cmd.Execute()
}
