package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	"smoothbdr/internal/services"
)

// exitDataErr is sysexits EX_DATAERR: the command rejected its input.
const exitDataErr = 65

const (
	stderrTailBytes = 2048
	killGrace       = 2 * time.Second
)

// runCommand writes req to the command's stdin and decodes its stdout. The
// command runs in its own process group so a timeout kills any children it
// started.
func runCommand(ctx context.Context, stageName string, command []string, timeout time.Duration, req request) (response, error) {
	if len(command) == 0 {
		return response{}, services.Wrap(services.ErrConfiguration, stageName, "run command", "no command configured", nil)
	}
	input, err := json.Marshal(req)
	if err != nil {
		return response{}, services.Wrap(services.ErrValidation, stageName, "encode request", "item could not be encoded", err)
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		detail := tail(stderr.String())
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return response{}, services.Wrap(services.ErrTimeout, stageName, "run command",
				fmt.Sprintf("%s timed out after %s", command[0], timeout), runErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == exitDataErr {
			return response{}, services.Wrap(services.ErrValidation, stageName, "run command",
				fmt.Sprintf("%s rejected the item: %s", command[0], detail), nil)
		}
		if errors.Is(runErr, exec.ErrNotFound) {
			return response{}, services.Wrap(services.ErrConfiguration, stageName, "run command",
				fmt.Sprintf("%s not found on PATH", command[0]), runErr)
		}
		return response{}, services.Wrap(services.ErrExternalTool, stageName, "run command",
			strings.TrimSpace(fmt.Sprintf("%s failed: %s", command[0], detail)), runErr)
	}

	var resp response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return response{}, services.Wrap(services.ErrTransient, stageName, "decode response",
			fmt.Sprintf("%s wrote malformed output", command[0]), err)
	}
	resp.Outcome = strings.ToLower(strings.TrimSpace(resp.Outcome))
	if resp.Outcome == outcomeInvalid {
		reason := strings.TrimSpace(resp.Reason)
		if reason == "" {
			reason = "input rejected"
		}
		return response{}, services.Wrap(services.ErrValidation, stageName, "run command", reason, nil)
	}
	return resp, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
		for len(s) > 0 && !utf8.RuneStart(s[0]) {
			s = s[1:]
		}
	}
	return s
}
