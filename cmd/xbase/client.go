package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"go.lsp.dev/jsonrpc2"

	"github.com/xbase-go/xbased/internal/xbased"
)

// daemonClient wraps a live jsonrpc2.Conn to the xbased daemon socket and
// prints the xbase/log, xbase/notify, and xbase/watching notifications the
// daemon pushes back (spec.md §6), the way go-tony/cmd/o's terminal output
// colors errors red and successes green only when attached to a TTY.
type daemonClient struct {
	conn   jsonrpc2.Conn
	color  bool
	stdout io.Writer
}

// dial connects to the daemon's Unix domain socket at sockPath (or its
// default per xbased.SocketPath) and starts the notification handler.
func dial(ctx context.Context, sockPath string, stdout io.Writer) (*daemonClient, error) {
	if sockPath == "" {
		sockPath = xbased.SocketPath()
	}
	nc, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to xbased at %s: %w (is the daemon running?)", sockPath, err)
	}

	useColor := isatty.IsTerminal(os.Stdout.Fd()) && !color.NoColor
	dc := &daemonClient{color: useColor, stdout: stdout}

	stream := jsonrpc2.NewStream(nc)
	conn := jsonrpc2.NewConn(stream)
	dc.conn = conn
	conn.Go(ctx, dc.handle)
	return dc, nil
}

// handle serves incoming notifications from the daemon: xbase/log carries
// one titled line of build/run output, xbase/notify is a one-shot info/error
// echo, and xbase/watching pushes the client's watching flag (spec.md §6).
func (c *daemonClient) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case "xbase/log":
		var p struct {
			Title string `json:"title"`
			Line  string `json:"line"`
		}
		if err := json.Unmarshal(req.Params(), &p); err != nil {
			return reply(ctx, nil, err)
		}
		fmt.Fprintf(c.stdout, "[%s] %s\n", p.Title, p.Line)
		return reply(ctx, nil, nil)

	case "xbase/notify":
		var p struct {
			Level string `json:"level"`
			Text  string `json:"text"`
		}
		if err := json.Unmarshal(req.Params(), &p); err != nil {
			return reply(ctx, nil, err)
		}
		c.printNotify(p.Level, p.Text)
		return reply(ctx, nil, nil)

	case "xbase/watching":
		var p struct {
			Watching bool `json:"watching"`
		}
		if err := json.Unmarshal(req.Params(), &p); err != nil {
			return reply(ctx, nil, err)
		}
		fmt.Fprintf(c.stdout, "watching: %v\n", p.Watching)
		return reply(ctx, nil, nil)

	default:
		return reply(ctx, nil, &jsonrpc2.Error{Code: 123, Message: "unhandled method " + req.Method()})
	}
}

func (c *daemonClient) printNotify(level, text string) {
	if !c.color {
		fmt.Fprintln(c.stdout, text)
		return
	}
	switch level {
	case "error":
		fmt.Fprintln(c.stdout, color.RedString(text))
	default:
		fmt.Fprintln(c.stdout, color.GreenString(text))
	}
}

func (c *daemonClient) call(ctx context.Context, method string, params interface{}) error {
	var result struct{}
	_, err := c.conn.Call(ctx, method, params, &result)
	return err
}

func (c *daemonClient) close() error {
	return c.conn.Close()
}

// clientRef builds the {pid, root, address} triple every client RPC request
// carries (spec.md §6), address left empty since the Unix socket connection
// itself is the transport.
func clientRef(root string) xbased.ClientRef {
	return xbased.ClientRef{PID: xbased.PID(os.Getpid()), Root: root}
}

type registerParams struct {
	Client xbased.ClientRef `json:"client"`
}

type dropParams struct {
	Client xbased.ClientRef `json:"client"`
}

type buildParams struct {
	Client   xbased.ClientRef     `json:"client"`
	Settings xbased.BuildSettings `json:"settings"`
	Ops      xbased.Operation     `json:"ops"`
}

type runParams struct {
	Client   xbased.ClientRef     `json:"client"`
	Settings xbased.BuildSettings `json:"settings"`
	Device   *xbased.Device       `json:"device,omitempty"`
	Ops      xbased.Operation     `json:"ops"`
}
