/*
Runs the testbed game: a spinning triangle in a window, or the gradient
compute shader when the configured window size is zero.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vulkanese/engine"
	"github.com/spaghettifunk/vulkanese/engine/config"
	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	flag.Parse()
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}

	tb := testbed.NewTestGame()

	e, err := engine.New(cfg, tb.Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialize: %s", err)
		code = 1
	} else if err := e.Run(ctx); err != nil {
		core.LogError("run: %s", err)
		code = 1
	}
	if err := e.Shutdown(); err != nil {
		code = 1
	}
	return code
}
