// Package hooks runs the user scripts bracketing backup and restore runs.
// A hook never decides the fate of a run: it reports an Outcome and the
// caller chooses to abort or carry on.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/raoulx24/dir-archiver/internal/logging"
)

// Stage names the point of a run a hook is attached to.
type Stage string

const (
	PreBackup   Stage = "pre-backup"
	PostBackup  Stage = "post-backup"
	PreRestore  Stage = "pre-restore"
	PostRestore Stage = "post-restore"
)

// Outcome is the result of one hook invocation.
type Outcome struct {
	Stage  Stage
	Script string
	// Skipped is set when no script is configured for the stage.
	Skipped  bool
	ExitCode int
	// Err is set when the script could not be started or exited non-zero.
	Err error
}

// OK reports whether the run may treat the hook as successful.
func (o Outcome) OK() bool {
	return o.Skipped || o.Err == nil
}

// ErrScriptNotFound is returned when a configured script does not exist.
var ErrScriptNotFound = errors.New("hook script not found")

// Runner executes hook scripts and streams their output into the log.
type Runner struct {
	scripts map[Stage]string
	log     logging.Logger
}

// NewRunner maps stages to script paths; empty paths are skipped.
func NewRunner(scripts map[Stage]string, log logging.Logger) *Runner {
	return &Runner{scripts: scripts, log: log}
}

// Run executes the script configured for stage, if any.
func (r *Runner) Run(ctx context.Context, stage Stage) Outcome {
	script := r.scripts[stage]
	out := Outcome{Stage: stage, Script: script}
	if script == "" {
		out.Skipped = true
		return out
	}

	log := r.log.With("hook", string(stage), "script", script)

	info, err := os.Stat(script)
	if err != nil || info.IsDir() {
		out.ExitCode = -1
		out.Err = fmt.Errorf("%s: %w", script, ErrScriptNotFound)
		log.Error("hooks: script not found")
		return out
	}

	log.Info("hooks: running script")

	stdout := &lineWriter{log: log, stream: "stdout"}
	stderr := &lineWriter{log: log, stream: "stderr"}
	cmd := exec.CommandContext(ctx, script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err = cmd.Run()
	stdout.flush()
	stderr.flush()

	out.ExitCode = -1
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		out.Err = fmt.Errorf("%s %s: %w", stage, script, err)
		log.Error("hooks: script failed", "exit_code", out.ExitCode, "error", err)
		return out
	}

	log.Info("hooks: script succeeded")
	return out
}

// waitDelay bounds output draining after the script exits or is killed.
const waitDelay = 5 * time.Second

// lineWriter logs every complete line written to it.
type lineWriter struct {
	log    logging.Logger
	stream string
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
}

func (w *lineWriter) flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	w.log.Info("hooks: output", "stream", w.stream, "line", line)
}
