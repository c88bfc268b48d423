package adb

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"homecontrol/models"
)

// runFunc invokes the adb binary and returns stdout, stderr and the exec
// error. Tests substitute it to avoid spawning processes.
type runFunc func(ctx context.Context, path string, args ...string) ([]byte, string, error)

func runADB(ctx context.Context, path string, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// Executor issues a single command against an established device connection,
// bounded by the command's timeout. It has no retry logic of its own; the
// orchestrator decides what a failure means.
type Executor struct {
	adbPath string
	log     zerolog.Logger
	run     runFunc
}

func NewExecutor(adbPath string, log zerolog.Logger) *Executor {
	return &Executor{
		adbPath: adbPath,
		log:     log.With().Str("component", "executor").Logger(),
		run:     runADB,
	}
}

// Run executes one command on the device. Failures come back classified:
// deadline overruns as timeouts, transient link errors as connection
// failures, everything else the device said no to as rejections.
func (e *Executor) Run(ctx context.Context, device *models.Device, cmd models.Command) (models.CommandResult, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = models.DefaultCommandTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(device.Addr(), cmd)
	start := time.Now()
	stdout, stderr, err := e.run(cctx, e.adbPath, args...)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.CommandResult{}, ctx.Err()
		}
		kind := classify(cctx, stderr, err)
		e.log.Debug().
			Str("device", device.ID).
			Str("command", cmd.Describe()).
			Dur("elapsed", elapsed).
			Str("kind", string(kind)).
			Msg("command failed")
		return models.CommandResult{Stderr: stderr},
			models.NewOpError(kind, device.ID, cmd.Describe(), err)
	}

	e.log.Debug().
		Str("device", device.ID).
		Str("command", cmd.Describe()).
		Dur("elapsed", elapsed).
		Msg("command ok")
	return models.CommandResult{Output: stdout, Stderr: stderr}, nil
}

func classify(ctx context.Context, stderr string, err error) models.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ErrKindTimeout
	}
	if transientADBError(stderr) {
		return models.ErrKindConnection
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Device reachable, command explicitly refused or unsupported.
		return models.ErrKindRejected
	}
	// adb missing, pipe broken, process never started.
	return models.ErrKindConnection
}

var transientPatterns = []string{
	"device offline",
	"device not found",
	"connection refused",
	"connection reset",
	"broken pipe",
	"cannot connect",
	"no devices",
}

// transientADBError reports whether stderr indicates a link-level failure
// worth a reconnect-and-retry rather than a hard rejection.
func transientADBError(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, pattern := range transientPatterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

func buildArgs(addr string, cmd models.Command) []string {
	args := []string{"-s", addr}
	switch cmd.Type {
	case models.CommandKeyEvent:
		args = append(args, "shell", "input", "keyevent", cmd.Keycode)
	case models.CommandShell:
		args = append(args, "shell")
		args = append(args, cmd.Shell...)
	case models.CommandTextInput:
		args = append(args, "shell", "input", "text", escapeText(cmd.Text))
	case models.CommandScreencap:
		args = append(args, "exec-out", "screencap", "-p")
	}
	return args
}

// escapeText rewrites text for `input text`: spaces become %s, quotes get
// shell escapes.
func escapeText(text string) string {
	r := strings.NewReplacer(
		" ", "%s",
		"'", `\'`,
		`"`, `\"`,
	)
	return r.Replace(text)
}
