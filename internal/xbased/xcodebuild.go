package xbased

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
)

// StepStream is the structured step stream an xcodebuild invocation emits,
// per spec.md §1 ("the external xcodebuild driver that emits a structured
// step stream"). The core only consumes this interface; nothing here
// depends on xcodebuild's actual output format beyond "one line per step".
type StepStream interface {
	// Next returns the next line of output, or ok=false at EOF.
	Next() (line string, ok bool)
	// Close releases the underlying process, returning its exit error if
	// it failed.
	Close() error
}

// xcodebuildStream runs xcodebuild as a subprocess and exposes its combined
// stdout/stderr as a StepStream. There is no example-pack library for
// structured subprocess step streaming (see DESIGN.md), so this is built
// directly on os/exec + bufio.Scanner.
type xcodebuildStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	invoked string
}

// runXcodebuild invokes xcodebuild with args in dir and returns a StepStream
// over its merged output. The stream records the literal invocation in
// its invoked field; callers that log it (spec.md §4.6) render their own
// copy, as xcodeProject.Build does.
func runXcodebuild(ctx context.Context, dir string, args []string) (StepStream, error) {
	cmd := exec.CommandContext(ctx, "xcodebuild", args...)
	cmd.Dir = dir
	cmd.Stdin = nil

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, unexpected("creating output pipe", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, unexpected("starting xcodebuild", err)
	}
	pw.Close()

	return &xcodebuildStream{
		cmd:     cmd,
		scanner: bufio.NewScanner(pr),
		invoked: "xcodebuild " + strings.Join(args, " "),
	}, nil
}

func (s *xcodebuildStream) Next() (string, bool) {
	if s.scanner.Scan() {
		return s.scanner.Text(), true
	}
	return "", false
}

func (s *xcodebuildStream) Close() error {
	return s.cmd.Wait()
}

// buildArgs assembles the xcodebuild invocation per spec.md §4.6/§4.7:
// -workspace <name>.xcworkspace -scheme <name> when a workspace exists,
// else -project <name>.xcodeproj, plus -configuration and SYMROOT.
func buildArgs(p *xcodeProject, settings BuildSettings, symroot string) []string {
	var args []string
	if p.hasWorkspace {
		args = append(args, "-workspace", p.name+".xcworkspace")
	} else {
		args = append(args, "-project", p.name+".xcodeproj")
	}
	switch {
	case settings.Method.Scheme != "":
		args = append(args, "-scheme", settings.Method.Scheme)
	case settings.Method.Target != "":
		args = append(args, "-target", settings.Method.Target)
	}
	if settings.Configuration != "" {
		args = append(args, "-configuration", string(settings.Configuration))
	}
	if symroot != "" {
		args = append(args, fmt.Sprintf("SYMROOT=%s", symroot))
	}
	return args
}

// Process is a managed subprocess spawned by a Run watchable: a built
// binary or a simulator launch, per spec.md §4.6. newProcess starts the
// reaper goroutine that makes exited observable; ShouldDiscard on
// run_watchable.go polls it to detect a process that exited on its own,
// since (*exec.Cmd).ProcessState stays nil until something calls Wait.
type Process struct {
	cmd    *exec.Cmd
	exited atomic.Bool
}

func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{cmd: cmd}
	go func() {
		_ = cmd.Wait()
		p.exited.Store(true)
	}()
	return p
}

// Exited reports whether the managed process has terminated, by any cause
// (self-exit, crash, or an explicit Kill).
func (p *Process) Exited() bool { return p.exited.Load() }

// pipePair is a small os.Pipe wrapper shared by the binary and simulator
// runners for streaming a spawned process's combined output.
func pipePair() (*os.File, *os.File, error) {
	return os.Pipe()
}

// streamPipeTo copies lines from a running process's output pipe into
// logger until EOF, closing r when done.
func streamPipeTo(r *os.File, logger *Logger) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Line(scanner.Text())
	}
}

// Kill terminates the managed process, the responsibility spec.md §4.6
// assigns to a Run watchable's discard().
func (p *Process) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return nil
}
