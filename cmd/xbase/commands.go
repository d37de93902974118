package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scott-cotton/cli"

	"github.com/xbase-go/xbased/internal/xbased"
)

// MainConfig holds the flags every xbase subcommand shares, mirroring the
// *MainConfig/cli.StructOpts layout go-tony/cmd/o/commands.go uses for its
// own subcommand tree.
type MainConfig struct {
	Main *cli.Command
	Sock string `cli:"name=sock desc='xbased unix socket path (default $XDG_RUNTIME_DIR/xbased.sock)'"`
	Root string `cli:"name=root desc='project root (default: current directory)'"`
}

func (c *MainConfig) root() (string, error) {
	if c.Root != "" {
		return c.Root, nil
	}
	return os.Getwd()
}

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}

	return cli.NewCommandAt(&cfg.Main, "xbase").
		WithSynopsis("xbase [-sock path] [-root dir] <command>").
		WithDescription("xbase is the editor-side CLI client for the xbased build/run/index daemon.").
		WithOpts(opts...).
		WithSubs(
			RegisterCommand(cfg),
			DropCommand(cfg),
			BuildCommand(cfg),
			RunCommand(cfg),
			DoctorCommand(cfg),
			DevicesCommand(cfg))
}

// RegisterConfig wraps MainConfig with the Command handle Parse needs, the
// way go-tony/cmd/o's per-subcommand configs store their own *cli.Command.
type RegisterConfig struct {
	*MainConfig
	Command *cli.Command
}

// RegisterCommand attaches this process as a client of root, per spec.md §6
// Register. It blocks, printing the daemon's log/notify stream, until
// interrupted — mirroring an editor's long-lived attach session.
func RegisterCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &RegisterConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Command, "register").
		WithAliases("r", "reg").
		WithSynopsis("register").
		WithDescription("attach to the daemon for this root and stream its log until interrupted").
		WithRun(func(cc *cli.Context, args []string) error {
			return registerRun(cfg, cc, args)
		})
}

func registerRun(cfg *RegisterConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}
	root, err := cfg.root()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dc, err := dial(ctx, cfg.Sock, cc.Out)
	if err != nil {
		return err
	}
	defer dc.close()

	if err := dc.call(ctx, "xbase/register", registerParams{Client: clientRef(root)}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Fprintf(cc.Out, "registered with %s\n", root)

	<-ctx.Done()

	dropCtx, dropCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dropCancel()
	_ = dc.call(dropCtx, "xbase/drop", dropParams{Client: clientRef(root)})
	return nil
}

// DropConfig wraps MainConfig with the Command handle Parse needs.
type DropConfig struct {
	*MainConfig
	Command *cli.Command
}

// DropCommand detaches this process, per spec.md §6 Drop.
func DropCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DropConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Command, "drop").
		WithSynopsis("drop").
		WithDescription("detach from the daemon for this root").
		WithRun(func(cc *cli.Context, args []string) error {
			return dropRun(cfg, cc, args)
		})
}

func dropRun(cfg *DropConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}
	root, err := cfg.root()
	if err != nil {
		return err
	}
	ctx := context.Background()
	dc, err := dial(ctx, cfg.Sock, cc.Out)
	if err != nil {
		return err
	}
	defer dc.close()
	return dc.call(ctx, "xbase/drop", dropParams{Client: clientRef(root)})
}

// BuildConfig carries the flags spec.md §4.6's BuildSettings/Operation
// require, parsed the way go-tony/cmd/o's per-subcommand configs embed
// *MainConfig and their own cli-tagged fields.
type BuildConfig struct {
	*MainConfig
	Command       *cli.Command
	Scheme        string `cli:"name=scheme desc='build against this scheme (inside a workspace)'"`
	Target        string `cli:"name=target desc='build against this target directly'"`
	Configuration string `cli:"name=configuration desc='Debug or Release' default=Debug"`
	Watch         bool   `cli:"name=watch desc='keep building on every relevant filesystem event'"`
	Stop          bool   `cli:"name=stop desc='stop a previously started -watch build'"`
}

func BuildCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &BuildConfig{MainConfig: mainCfg, Configuration: "Debug"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "build").
		WithAliases("b").
		WithSynopsis("build [-scheme name | -target name] [-configuration Debug|Release] [-watch | -stop]").
		WithDescription("build the project once, or promote/remove a watched rebuild-on-save loop").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return buildRun(cfg, cc, args)
		})
}

func buildRun(cfg *BuildConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}
	root, err := cfg.root()
	if err != nil {
		return err
	}
	settings, err := buildSettings(cfg.Scheme, cfg.Target, cfg.Configuration)
	if err != nil {
		return err
	}
	op, err := resolveOp(cfg.Watch, cfg.Stop)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dc, err := dial(ctx, cfg.Sock, cc.Out)
	if err != nil {
		return err
	}
	defer dc.close()

	if err := dc.call(ctx, "xbase/build", buildParams{Client: clientRef(root), Settings: settings, Ops: op}); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if op == xbased.OpWatch {
		<-ctx.Done()
	}
	return nil
}

// RunConfig adds the device flags to BuildConfig, per spec.md §6's
// Run{settings, device?, ops}.
type RunConfig struct {
	*MainConfig
	Command       *cli.Command
	Scheme        string `cli:"name=scheme desc='build against this scheme (inside a workspace)'"`
	Target        string `cli:"name=target desc='build against this target directly'"`
	Configuration string `cli:"name=configuration desc='Debug or Release' default=Debug"`
	Device        string `cli:"name=device desc='simulator UDID or destination string'"`
	Watch         bool   `cli:"name=watch desc='rebuild and relaunch on every relevant filesystem event'"`
	Stop          bool   `cli:"name=stop desc='stop a previously started -watch run, killing its process'"`
}

func RunCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &RunConfig{MainConfig: mainCfg, Configuration: "Debug"}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "run").
		WithSynopsis("run [-scheme name | -target name] [-device udid] [-watch | -stop]").
		WithDescription("build then launch the project, optionally on a simulator, watching for rebuild").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return runRun(cfg, cc, args)
		})
}

func runRun(cfg *RunConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}
	root, err := cfg.root()
	if err != nil {
		return err
	}
	settings, err := buildSettings(cfg.Scheme, cfg.Target, cfg.Configuration)
	if err != nil {
		return err
	}
	op, err := resolveOp(cfg.Watch, cfg.Stop)
	if err != nil {
		return err
	}

	var device *xbased.Device
	if cfg.Device != "" {
		device = &xbased.Device{UDID: cfg.Device}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dc, err := dial(ctx, cfg.Sock, cc.Out)
	if err != nil {
		return err
	}
	defer dc.close()

	if err := dc.call(ctx, "xbase/run", runParams{Client: clientRef(root), Settings: settings, Device: device, Ops: op}); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if op == xbased.OpWatch {
		<-ctx.Done()
	}
	return nil
}

func buildSettings(scheme, target, configuration string) (xbased.BuildSettings, error) {
	var method xbased.BuildMethod
	switch {
	case scheme != "" && target != "":
		return xbased.BuildSettings{}, fmt.Errorf("%w: pass one of -scheme or -target, not both", cli.ErrUsage)
	case scheme != "":
		method = xbased.WithScheme(scheme)
	case target != "":
		method = xbased.WithTarget(target)
	default:
		return xbased.BuildSettings{}, fmt.Errorf("%w: one of -scheme or -target is required", cli.ErrUsage)
	}
	return xbased.BuildSettings{Method: method, Configuration: xbased.Configuration(configuration)}, nil
}

func resolveOp(watch, stop bool) (xbased.Operation, error) {
	switch {
	case watch && stop:
		return 0, fmt.Errorf("%w: pass one of -watch or -stop, not both", cli.ErrUsage)
	case watch:
		return xbased.OpWatch, nil
	case stop:
		return xbased.OpStop, nil
	default:
		return xbased.OpOnce, nil
	}
}
