// Command xbase-sourcekit is the BSP (Build Server Protocol) companion
// process spec.md §1/§4.8 describes: it speaks a JSON-RPC dialect on stdio
// to a language server (SourceKit-LSP), serving per-file compiler
// arguments out of the compilation database xbased keeps current at
// `<root>/.compile`.
//
// None of BSP's method names ("build/initialize", "textDocument/
// sourceKitOptions", ...) collide with go.lsp.dev/protocol's hardcoded LSP
// method set, so every real method here is served through Server.Request,
// the interface's untyped catch-all; the named LSP methods are left as
// no-ops exactly as cmd/tony-lsp/main.go leaves its unused capabilities.
package main

import (
	"context"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const serverName = "xbase-sourcekit"

var version = "0.1.0"

func main() {
	ctx := context.Background()
	stream := jsonrpc2.NewStream(&stdioReadWriteCloser{read: os.Stdin, write: os.Stdout})
	server := newServer()
	handler := protocol.ServerHandler(server, nil)
	conn := jsonrpc2.NewConn(stream)
	server.conn = conn
	conn.Go(ctx, handler)
	<-conn.Done()
}

type stdioReadWriteCloser struct {
	read  io.Reader
	write io.Writer
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.read.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.write.Write(p) }
func (s *stdioReadWriteCloser) Close() error                { return nil }
