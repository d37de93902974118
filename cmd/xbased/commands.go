package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"

	"github.com/xbase-go/xbased/internal/xbased"
)

// MainConfig holds the daemon's top-level flags, mirroring the
// *MainConfig/cli.StructOpts layout go-tony/cmd/o/commands.go uses.
type MainConfig struct {
	Main   *cli.Command
	Sock   string `cli:"name=sock desc='unix socket path (default $XDG_RUNTIME_DIR/xbased.sock)'"`
	NoGops bool   `cli:"name=no-gops desc='disable the gops diagnostics agent'"`
}

// slogLevel mirrors go-tony/system/logd/server/server.go's slogLevel(): the
// daemon takes its log level from the DEBUG env var rather than a CLI flag.
func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}

	return cli.NewCommandAt(&cfg.Main, "xbased").
		WithSynopsis("xbased [-sock path] (set DEBUG=1 for debug logging)").
		WithDescription("xbased is the build/run/index daemon for Xcode-style projects.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return run(cfg, cc, args)
		})
}

func run(cfg *MainConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Main.Parse(cc, args); err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel()}))

	if !cfg.NoGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
		}
	}

	sockPath := cfg.Sock
	if sockPath == "" {
		sockPath = xbased.SocketPath()
	}

	state := xbased.NewState(log)
	dispatcher := xbased.NewDispatcher(state)

	srv, err := xbased.Listen(sockPath, dispatcher, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer srv.Close()
	defer os.Remove(sockPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
