package main

import (
	"fmt"
	"os"

	"github.com/mcdonaldj/apkpatch/internal/cli"
	"github.com/mcdonaldj/apkpatch/internal/config"
	"github.com/mcdonaldj/apkpatch/internal/logging"
)

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	// A broken config file is reported by the command itself; logging
	// falls back to defaults until then.
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	level := cfg.LogLevel
	if os.Getenv("APKPATCH_DEBUG") != "" {
		level = "debug"
	}
	logger, err := logging.New(os.Stderr, level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := cli.New(version)
	c.Logger = logger
	c.Run()
}
