package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result carries the outcome of one executed command.
type Result struct {
	Stdout []byte
	Stderr []byte
	Code   int
}

// Out returns trimmed stdout as a string.
func (r Result) Out() string {
	return strings.TrimSpace(string(r.Stdout))
}

var ErrTimeout = errors.New("command timed out")

// commands run with a fixed minimal environment; inherited PATH must not
// influence which privileged binaries get picked up
var baseEnv = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin", "LANG=C", "LC_ALL=C"}

// Run executes name with args under a timeout and returns the captured
// outcome. A non-zero exit is reported through Result.Code together with
// the *exec.ExitError; callers decide whether that is fatal.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Env = baseEnv
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	res := Result{Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes(), Code: exitCode(err)}
	if cctx.Err() == context.DeadlineExceeded {
		return res, ErrTimeout
	}
	return res, err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
