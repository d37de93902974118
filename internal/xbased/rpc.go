package xbased

import (
	"context"
	"encoding/json"

	"go.lsp.dev/jsonrpc2"
)

// connNotifier adapts a jsonrpc2.Conn into the Notifier interface a Logger
// needs, pushing build output and watching-state changes back to the
// editor as JSON-RPC notifications over the daemon↔editor connection
// (spec.md §1's "editor transport", here made concrete as newline-free
// Content-Length-framed JSON-RPC per SPEC_FULL.md §9).
type connNotifier struct {
	conn jsonrpc2.Conn
}

func (n *connNotifier) Log(title, line string) {
	_ = n.conn.Notify(context.Background(), "xbase/log", logParams{Title: title, Line: line})
}

func (n *connNotifier) Notify(level, text string) {
	_ = n.conn.Notify(context.Background(), "xbase/notify", notifyParams{Level: level, Text: text})
}

func (n *connNotifier) SetWatching(watching bool) {
	_ = n.conn.Notify(context.Background(), "xbase/watching", watchingParams{Watching: watching})
}

type logParams struct {
	Title string `json:"title"`
	Line  string `json:"line"`
}

type notifyParams struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type watchingParams struct {
	Watching bool `json:"watching"`
}

type registerParams struct {
	Client ClientRef `json:"client"`
}

type dropParams struct {
	Client ClientRef `json:"client"`
}

type buildParams struct {
	Client   ClientRef     `json:"client"`
	Settings BuildSettings `json:"settings"`
	Ops      Operation     `json:"ops"`
}

type runParams struct {
	Client   ClientRef     `json:"client"`
	Settings BuildSettings `json:"settings"`
	Device   *Device       `json:"device,omitempty"`
	Ops      Operation     `json:"ops"`
}

// unhandledMethodError renders the same structured error both the daemon
// RPC surface and the BSP server use for methods neither recognizes
// (spec.md §6 "Error reply for unknown methods: code 123").
func unhandledMethodError(method string) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: 123, Message: "unhandled method " + method}
}

// NewHandler returns the jsonrpc2.Handler serving spec.md §6's
// Register/Build/Run/Drop requests over one client connection.
func NewHandler(d *Dispatcher, conn jsonrpc2.Conn) jsonrpc2.Handler {
	notifier := &connNotifier{conn: conn}

	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case "xbase/register":
			var p registerParams
			if err := json.Unmarshal(req.Params(), &p); err != nil {
				return reply(ctx, nil, err)
			}
			err := d.Register(ctx, RegisterRequest{Client: p.Client, Notifier: notifier})
			return reply(ctx, struct{}{}, err)

		case "xbase/drop":
			var p dropParams
			if err := json.Unmarshal(req.Params(), &p); err != nil {
				return reply(ctx, nil, err)
			}
			err := d.Drop(ctx, DropRequest{Client: p.Client})
			return reply(ctx, struct{}{}, err)

		case "xbase/build":
			var p buildParams
			if err := json.Unmarshal(req.Params(), &p); err != nil {
				return reply(ctx, nil, err)
			}
			err := d.Build(ctx, BuildRequest{Client: p.Client, Settings: p.Settings, Ops: p.Ops})
			return reply(ctx, struct{}{}, err)

		case "xbase/run":
			var p runParams
			if err := json.Unmarshal(req.Params(), &p); err != nil {
				return reply(ctx, nil, err)
			}
			err := d.Run(ctx, RunRequest{Client: p.Client, Settings: p.Settings, Device: p.Device, Ops: p.Ops})
			return reply(ctx, struct{}{}, err)

		default:
			return reply(ctx, nil, unhandledMethodError(req.Method()))
		}
	}
}
