// Command xbase is the editor-side CLI client spec.md §1 names as an
// external collaborator ("the CLI/config layer that seeds a client
// record"): it dials the xbased daemon's Unix domain socket and issues
// Register/Build/Run/Drop requests, printing the daemon's log/notify/
// watching-state stream to the terminal.
package main

import (
	"context"

	"github.com/scott-cotton/cli"
)

func main() {
	cli.MainContext(context.Background(), MainCommand())
}
