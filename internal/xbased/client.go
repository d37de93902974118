package xbased

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// PID identifies an editor process that has registered with the daemon.
type PID int64

// Client is the daemon's record of an attached editor, per spec.md §3.
// It owns the logger sink bound to its transport address; the logger never
// outlives the Client (spec.md §3 "Ownership").
type Client struct {
	PID     PID
	Root    string
	Address string // opaque transport address, e.g. a unix socket peer id

	logger *Logger

	mu       sync.Mutex
	watching bool
}

// abbreviatedRoot renders the last two path components of root, the short
// display form spec.md §3 calls for (supplemented from
// original_source/src/types.rs's Address abbreviation). newLogger uses it
// to prefix a client's echoed titles and log lines.
func abbreviatedRoot(root string) string {
	clean := filepath.Clean(root)
	parts := strings.Split(clean, string(filepath.Separator))
	if len(parts) <= 2 {
		return clean
	}
	return filepath.Join(parts[len(parts)-2:]...)
}

func (c *Client) setWatching(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = v
}

func (c *Client) isWatching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watching
}

// ClientRegistry is the mapping from PID to Client, per spec.md §3. All
// mutation happens under the shared State mutex (spec.md §4.1); the
// registry itself holds no additional lock.
type ClientRegistry struct {
	clients map[PID]*Client
	log     *slog.Logger
}

func newClientRegistry(log *slog.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[PID]*Client), log: log}
}

func (r *ClientRegistry) add(c *Client) {
	r.clients[c.PID] = c
}

func (r *ClientRegistry) remove(pid PID) {
	delete(r.clients, pid)
}

func (r *ClientRegistry) get(pid PID) (*Client, error) {
	c, ok := r.clients[pid]
	if !ok {
		return nil, newNotFound(KindClient, fmt.Sprintf("%d", pid))
	}
	return c, nil
}

// echoMsg broadcasts a message to every client attached to root, per
// spec.md §4.3.
func (r *ClientRegistry) echoMsg(root, name, text string) {
	for _, c := range r.clients {
		if c.Root == root {
			c.logger.Info(name, text)
		}
	}
}

// echoErrTo sends an error echo to a single client, used e.g. for the
// "already watching" and build-invocation-failure notifications in
// spec.md §4.6 and the duplicate-watch scenario in spec.md §8.
func (r *ClientRegistry) echoErrTo(c *Client, text string) {
	c.logger.Error(text)
	r.log.Warn("echo_err", "pid", c.PID, "root", c.Root, "text", text)
}

// setWatching is idempotent per spec.md §4.3 and pushes the new flag to the
// editor via sync_client_state.
func (r *ClientRegistry) setWatching(c *Client, v bool) {
	if c.isWatching() == v {
		return
	}
	c.setWatching(v)
	c.logger.SyncState(v)
}
