package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mkwebuser/pkg/shell"
)

// Local executes gateway operations against the running host by invoking
// the usual administration binaries. It is the only place in the program
// that knows which commands implement which operation.
type Local struct {
	SSHDConfigPath string
	Timeout        time.Duration
	Log            zerolog.Logger
}

func NewLocal(sshdConfig string, timeout time.Duration, log zerolog.Logger) *Local {
	return &Local{SSHDConfigPath: sshdConfig, Timeout: timeout, Log: log}
}

// test seam
var runCommand = shell.Run

func (l *Local) run(ctx context.Context, name string, args ...string) (shell.Result, error) {
	l.Log.Debug().Str("cmd", name).Strs("args", args).Msg("exec")
	return runCommand(ctx, l.Timeout, name, args...)
}

func (l *Local) Execute(ctx context.Context, op Op, args []string) (shell.Result, error) {
	if err := checkArgs(op, args); err != nil {
		return shell.Result{}, err
	}
	switch op {
	case OpCreateAccount:
		return l.createAccount(ctx, args[0], args[1])
	case OpDeleteAccount:
		res, err := l.run(ctx, "userdel", "--remove", args[0])
		if err != nil {
			return res, fmt.Errorf("userdel %s: %s", args[0], stderrOr(res, err))
		}
		return res, nil
	case OpCreateFilesystemImg:
		return l.createFilesystemImage(ctx, args[0], args[1])
	case OpDeleteFile:
		if err := os.Remove(args[0]); err != nil && !os.IsNotExist(err) {
			return shell.Result{}, fmt.Errorf("remove %s: %w", args[0], err)
		}
		return shell.Result{}, nil
	case OpAttachLoopDevice:
		res, err := l.run(ctx, "losetup", "--find", "--show", args[0])
		if err != nil {
			return res, fmt.Errorf("losetup %s: %s", args[0], stderrOr(res, err))
		}
		return res, nil
	case OpDetachLoopDevice:
		res, err := l.run(ctx, "losetup", "--detach", args[0])
		if err != nil {
			return res, fmt.Errorf("losetup -d %s: %s", args[0], stderrOr(res, err))
		}
		return res, nil
	case OpMount:
		if err := os.MkdirAll(args[1], 0o755); err != nil {
			return shell.Result{}, fmt.Errorf("mkdir %s: %w", args[1], err)
		}
		res, err := l.run(ctx, "mount", "-t", "ext4", args[0], args[1])
		if err != nil {
			return res, fmt.Errorf("mount %s: %s", args[1], stderrOr(res, err))
		}
		return res, nil
	case OpUnmount:
		res, err := l.run(ctx, "umount", args[0])
		if err != nil {
			return res, fmt.Errorf("umount %s: %s", args[0], stderrOr(res, err))
		}
		return res, nil
	case OpBindChroot:
		return l.bindChroot(ctx, args[0], args[1])
	case OpUnbindChroot:
		return l.unbindChroot(args[0])
	case OpSetRestrictedLogin:
		if err := ensureSftpMatchBlock(l.SSHDConfigPath, args[0], args[1]); err != nil {
			return shell.Result{}, err
		}
		// the account keeps /usr/sbin/nologin as shell; sftp sessions go
		// through the internal-sftp subsystem regardless of shell
		return shell.Result{}, nil
	case OpClearRestrictedLogin:
		if err := removeSftpMatchBlock(l.SSHDConfigPath, args[0]); err != nil {
			return shell.Result{}, err
		}
		res, err := l.run(ctx, "usermod", "--shell", "/usr/sbin/nologin", args[0])
		if err != nil {
			return res, fmt.Errorf("usermod %s: %s", args[0], stderrOr(res, err))
		}
		return res, nil
	}
	return shell.Result{}, fmt.Errorf("%w: %s", ErrUnknownOp, op)
}

func (l *Local) createAccount(ctx context.Context, username, baseDir string) (shell.Result, error) {
	res, err := l.run(ctx, "useradd",
		"--base-dir", baseDir,
		"--comment", "mkwebuser "+username,
		"--inactive", "-1",
		"--shell", "/usr/sbin/nologin",
		"--create-home",
		username)
	if err != nil {
		return res, fmt.Errorf("useradd %s: %s", username, useraddReason(res.Code))
	}
	return res, nil
}

// useraddReason maps useradd(8) exit statuses to readable causes.
func useraddReason(code int) string {
	switch code {
	case 1:
		return "unable to update password file"
	case 2:
		return "invalid command syntax"
	case 3:
		return "invalid argument to option"
	case 4:
		return "UID already in use"
	case 6:
		return "specified group does not exist"
	case 9:
		return "username already in use"
	case 10:
		return "failed to update group file"
	case 12:
		return "failed to create home directory"
	case 13:
		return "failed to create mail spool"
	case 14:
		return "failed to update SELinux user mapping"
	case -1:
		return "process terminated by signal"
	default:
		return fmt.Sprintf("exit status %d", code)
	}
}

func (l *Local) createFilesystemImage(ctx context.Context, path, quotaMiB string) (shell.Result, error) {
	res, err := l.run(ctx, "dd",
		"if=/dev/zero",
		"of="+path,
		"bs="+quotaMiB+"M",
		"count=1")
	if err != nil {
		return res, fmt.Errorf("dd %s: %s", path, stderrOr(res, err))
	}
	res, err = l.run(ctx, "mkfs.ext4", "-F", "-q", path)
	if err != nil {
		return res, fmt.Errorf("mkfs.ext4 %s: %s", path, stderrOr(res, err))
	}
	return res, nil
}

// bindChroot sets up the ownership layout sshd's ChrootDirectory insists on:
// the jail root must be root-owned and not group/world writable, with a
// user-owned data directory inside for actual uploads.
func (l *Local) bindChroot(ctx context.Context, target, username string) (shell.Result, error) {
	if err := os.Chmod(target, 0o755); err != nil {
		return shell.Result{}, fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := os.Chown(target, 0, 0); err != nil {
		return shell.Result{}, fmt.Errorf("chown %s: %w", target, err)
	}
	res, err := l.run(ctx, "install", "-d", "-o", username, "-g", username, target+"/data")
	if err != nil {
		return res, fmt.Errorf("install -d %s/data: %s", target, stderrOr(res, err))
	}
	return res, nil
}

func (l *Local) unbindChroot(target string) (shell.Result, error) {
	if err := os.RemoveAll(target + "/data"); err != nil {
		return shell.Result{}, fmt.Errorf("remove %s/data: %w", target, err)
	}
	return shell.Result{}, nil
}

func stderrOr(res shell.Result, err error) string {
	if s := strings.TrimSpace(string(res.Stderr)); s != "" {
		return s
	}
	return err.Error()
}
