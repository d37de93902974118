package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"go.lsp.dev/jsonrpc2"

	"github.com/xbase-go/xbased/internal/xbased"
)

// Server implements protocol.Server; almost every method is an unused LSP
// stub (see stubs.go) and the real BSP conversation is served entirely
// through Request, per spec.md §4.8's method table.
type Server struct {
	conn jsonrpc2.Conn
	log  *slog.Logger

	mu     sync.Mutex
	caches map[string]*xbased.BSPCache // rootUri -> cache
}

func newServer() *Server {
	// stdout carries the JSON-RPC stream itself, so diagnostics go to
	// stderr, gated by DEBUG the same way xbased's own logger is.
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel()}))
	return &Server{caches: make(map[string]*xbased.BSPCache), log: log}
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type initializeBuildParams struct {
	RootURI string `json:"rootUri"`
}

type initializeBuildResult struct {
	DisplayName       string `json:"displayName"`
	Version           string `json:"version"`
	BSPVersion        string `json:"bspVersion"`
	IndexStorePath    string `json:"indexStorePath,omitempty"`
	IndexDatabasePath string `json:"indexDatabasePath,omitempty"`
}

type registerForChangesParams struct {
	URI    string `json:"uri"`
	Action string `json:"action"`
}

type sourceKitOptionsParams struct {
	URI string `json:"uri"`
}

type sourceKitOptionsResult struct {
	Options          []string `json:"options"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
}

type sourceKitOptionsChangedParams struct {
	URI            string                 `json:"uri"`
	UpdatedOptions sourceKitOptionsResult `json:"updatedOptions"`
}

// Request implements the untyped BSP dispatch: every real method in
// spec.md §4.8 arrives here, since none of their names match a typed
// protocol.Server method.
func (s *Server) Request(ctx context.Context, method string, params interface{}) (interface{}, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	switch method {
	case "build/initialize":
		var p initializeBuildParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return s.initialize(p), nil

	case "build/initialized", "build/exit":
		return nil, nil

	case "build/shutdown":
		return nil, nil

	case "workspace/buildTargets":
		return map[string]interface{}{"targets": []interface{}{}}, nil

	case "buildTarget/sources", "buildTarget/outputPaths":
		return map[string]interface{}{"items": []interface{}{}}, nil

	case "textDocument/registerForChanges":
		var p registerForChangesParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.registerForChanges(ctx, p)

	case "textDocument/sourceKitOptions":
		var p sourceKitOptionsParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return s.sourceKitOptions(p)

	default:
		return nil, &jsonrpc2.Error{Code: 123, Message: "unhandled method " + method}
	}
}

func (s *Server) initialize(p initializeBuildParams) initializeBuildResult {
	s.mu.Lock()
	s.caches[p.RootURI] = xbased.NewBSPCache(p.RootURI)
	s.mu.Unlock()

	indexStore, indexDB := xbased.IndexPaths(p.RootURI, projectNameOf(p.RootURI))
	return initializeBuildResult{
		DisplayName:       serverName,
		Version:           version,
		BSPVersion:        "2.0.0",
		IndexStorePath:    indexStore,
		IndexDatabasePath: indexDB,
	}
}

// registerForChanges replies OK immediately and, for a "register" action,
// follows up with a build/sourceKitOptionsChanged notification carrying
// the file's current arguments (spec.md §4.8). The lookup and notify run
// in a goroutine so the OK reply reaches the wire first: Request's return
// value becomes that reply only once this method has already returned, so
// doing the notify inline here would race it onto the wire ahead of the
// reply.
func (s *Server) registerForChanges(ctx context.Context, p registerForChangesParams) error {
	if p.Action != "register" {
		return nil
	}
	go func() {
		options, dir, err := s.cacheFor(p.URI).Lookup(p.URI)
		if err != nil {
			s.log.Error("registerForChanges lookup failed", "uri", p.URI, "error", err)
			return
		}
		if err := s.conn.Notify(ctx, "build/sourceKitOptionsChanged", sourceKitOptionsChangedParams{
			URI:            p.URI,
			UpdatedOptions: sourceKitOptionsResult{Options: options, WorkingDirectory: dir},
		}); err != nil {
			s.log.Error("sourceKitOptionsChanged notify failed", "uri", p.URI, "error", err)
		}
	}()
	return nil
}

func (s *Server) sourceKitOptions(p sourceKitOptionsParams) (sourceKitOptionsResult, error) {
	options, dir, err := s.cacheFor(p.URI).Lookup(p.URI)
	if err != nil {
		return sourceKitOptionsResult{}, err
	}
	return sourceKitOptionsResult{Options: options, WorkingDirectory: dir}, nil
}

// cacheFor resolves the BSPCache owning uri's root. Only one root is
// registered per connection in practice (one xbase-sourcekit process per
// SourceKit-LSP workspace), so the first cache present is used as a
// fallback when uri carries no exact root match.
func (s *Server) cacheFor(uri string) *xbased.BSPCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root, cache := range s.caches {
		if len(root) > 0 && len(uri) >= len(root) && uri[:len(root)] == root {
			return cache
		}
	}
	for _, cache := range s.caches {
		return cache
	}
	return nil
}

func projectNameOf(rootURI string) string {
	name := rootURI
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
