package xbased

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// compilePath returns the `<root>/.compile` path spec.md §6 specifies as
// persisted state.
func compilePath(root string) string {
	return filepath.Join(root, ".compile")
}

// CompilePath is the exported form of compilePath, used by
// cmd/xbase-sourcekit to locate the compilation database it serves.
func CompilePath(root string) string { return compilePath(root) }

// updateCompileDatabase implements spec.md §4.7's `ensure_server_support`
// body: invoke xcodebuild, parse the resulting compilation database, and
// write it pretty-printed to `<root>/.compile`. It returns (true, nil) on
// regeneration, (false, nil) when the new database is byte-identical to
// what's already on disk, and a non-nil error (logged only by the caller)
// on failure.
//
// The write path is guarded by a gofrs/flock exclusive lock on
// `<root>/.compile.lock` because the daemon (writer) and xbase-sourcekit
// (reader, see BSPCache in bsp_cache.go) are separate OS processes
// (spec.md §1), and a torn read of a half-written `.compile` would corrupt
// the BSP file-argument cache.
func updateCompileDatabase(ctx context.Context, p *xcodeProject) (bool, error) {
	lock := flock.New(filepath.Join(p.root, ".compile.lock"))
	lockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return false, unexpected("acquiring compile database lock", err)
	}
	defer lock.Unlock()

	root := cacheRoot(p.root, p.name)
	method := defaultCompileMethod(p)
	args := buildArgs(p, BuildSettings{Configuration: ConfigurationDebug, Method: method}, root)
	p.log.Info("xcodebuild invocation", "args", args)

	stream, err := runXcodebuild(ctx, p.root, args)
	if err != nil {
		return false, err
	}
	commands := parseCompileCommands(stream, p.root)
	if err := stream.Close(); err != nil {
		return false, unexpected("xcodebuild compile-database generation failed", err)
	}

	newData, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return false, unexpected("encoding compile database", err)
	}

	path := compilePath(p.root)
	oldData, readErr := os.ReadFile(path)
	if readErr == nil && bytes.Equal(oldData, newData) {
		return false, nil
	}
	if readErr == nil {
		logCompileDatabaseDiff(p, string(oldData), string(newData))
	}

	if err := os.WriteFile(path, newData, 0o644); err != nil {
		return false, unexpected("writing .compile", err)
	}
	return true, nil
}

// defaultCompileMethod picks a deterministic BuildMethod for the
// project-wide database regeneration (which carries no client-chosen
// settings): the project's name as a scheme when a workspace exists,
// otherwise the first target in name-sorted order.
func defaultCompileMethod(p *xcodeProject) BuildMethod {
	if p.hasWorkspace {
		return WithScheme(p.name)
	}
	targets := make([]string, 0, len(p.targets))
	for target := range p.targets {
		targets = append(targets, target)
	}
	if len(targets) > 0 {
		sort.Strings(targets)
		return WithTarget(targets[0])
	}
	return WithScheme(p.name)
}

// parseCompileCommands extracts {directory, file, arguments} records from
// an xcodebuild step stream. xcodebuild itself does not emit a
// compile_commands.json; the real xbase relies on the `xclog` crate's
// heuristic extraction from verbose build output (see
// original_source/daemon/src/project/barebone.rs). This mirrors that
// heuristic: any line invoking clang/swiftc against a source file becomes
// one record.
func parseCompileCommands(stream StepStream, root string) []CompileCommand {
	var commands []CompileCommand
	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		if cmd, ok := parseCompileLine(line, root); ok {
			commands = append(commands, cmd)
		}
	}
	return commands
}

func parseCompileLine(line, root string) (CompileCommand, bool) {
	trimmed := strings.TrimSpace(line)
	isCompiler := strings.Contains(trimmed, "/swiftc ") || strings.Contains(trimmed, "/clang ") ||
		strings.HasPrefix(trimmed, "swiftc ") || strings.HasPrefix(trimmed, "clang ")
	if !isCompiler {
		return CompileCommand{}, false
	}

	fields := strings.Fields(trimmed)
	var file string
	for _, f := range fields {
		if strings.HasSuffix(f, ".swift") || strings.HasSuffix(f, ".m") || strings.HasSuffix(f, ".mm") || strings.HasSuffix(f, ".c") || strings.HasSuffix(f, ".cpp") {
			file = f
			break
		}
	}
	if file == "" {
		return CompileCommand{}, false
	}

	return CompileCommand{Directory: root, File: file, Arguments: fields}, true
}

// logCompileDatabaseDiff logs a unified-style diff between the previous and
// new `.compile` contents at debug level, using the same go-diff library
// `cmd/o/diff.go` uses for structural diffing in the teacher module.
func logCompileDatabaseDiff(p *xcodeProject, oldText, newText string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	p.log.Debug("compile database changed", "diff", dmp.DiffPrettyText(diffs))
}
