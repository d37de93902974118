package xbased

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"
)

// SocketPath resolves the daemon's Unix domain socket location, preferring
// $XDG_RUNTIME_DIR (the convention go-tony's docd/logd servers follow for
// their TCP addresses) and falling back to a per-uid path under TempDir.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/xbased.sock"
	}
	return fmt.Sprintf("%s/xbased-%d.sock", os.TempDir(), os.Getuid())
}

// Server owns the Unix domain socket listener and dispatches each
// connection to its own jsonrpc2 handler over the shared Dispatcher,
// following the accept-loop/wg/closed shape of the teacher's TCPListener
// (go-tony/system/logd/server/tcp.go), adapted from TCP sessions to
// per-connection JSON-RPC conns.
type Server struct {
	listener   net.Listener
	dispatcher *Dispatcher
	log        *slog.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Listen binds the Unix domain socket at path, removing any stale socket
// file left behind by a prior unclean shutdown.
func Listen(path string, dispatcher *Dispatcher, log *slog.Logger) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, unexpected("listening on "+path, err)
	}
	return &Server{listener: ln, dispatcher: dispatcher, log: log}, nil
}

func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until Close is called, blocking the caller.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("xbased listening", "addr", s.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.log.Error("accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one editor connection under its own session id,
// generated rather than derived from any Watchable identity (spec.md §9
// warns identity strings must stay canonical request renderings; a
// connection id is purely a log-correlation handle).
func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	defer s.wg.Done()
	sessionID := uuid.NewString()
	log := s.log.With("session", sessionID)
	log.Info("client connected")

	stream := jsonrpc2.NewStream(nc)
	conn := jsonrpc2.NewConn(stream)
	conn.Go(ctx, NewHandler(s.dispatcher, conn))
	<-conn.Done()
	_ = nc.Close()
	log.Info("client disconnected")
}

func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
