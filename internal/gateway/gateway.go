// Package gateway is the narrow boundary between the orchestrator and the
// privileged OS operations it sequences. Step executors never exec anything
// themselves; they name an operation and the gateway decides how (and
// whether) to run it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mkwebuser/pkg/shell"
	"mkwebuser/pkg/validate"
)

type Op string

const (
	OpCreateAccount        Op = "create-account"          // args: username, baseDir
	OpDeleteAccount        Op = "delete-account"          // args: username
	OpCreateFilesystemImg  Op = "create-filesystem-image" // args: path, quotaMiB
	OpDeleteFile           Op = "delete-file"             // args: path
	OpAttachLoopDevice     Op = "attach-loop-device"      // args: path; stdout = loop device
	OpDetachLoopDevice     Op = "detach-loop-device"      // args: loopDevice
	OpMount                Op = "mount"                   // args: loopDevice, target
	OpUnmount              Op = "unmount"                 // args: target
	OpBindChroot           Op = "bind-chroot"             // args: target, username
	OpUnbindChroot         Op = "unbind-chroot"           // args: target
	OpSetRestrictedLogin   Op = "set-restricted-login"    // args: username, chrootDir
	OpClearRestrictedLogin Op = "clear-restricted-login"  // args: username
)

var (
	ErrUnknownOp = errors.New("unknown gateway operation")
	ErrBadArgs   = errors.New("operation arguments rejected")
)

// Gateway executes a single privileged operation synchronously. A failed
// operation is an ordinary error; the caller owns sequencing and rollback.
type Gateway interface {
	Execute(ctx context.Context, op Op, args []string) (shell.Result, error)
}

// Mount is one row of the host mount table, as far as verification cares.
type Mount struct {
	Device string
	Target string
	FSType string
}

// Host answers read-only questions about current host state. It backs the
// Verify probes that make re-entry idempotent.
type Host interface {
	// AccountHome returns the home directory of username, or ok=false if
	// the account does not exist.
	AccountHome(username string) (home string, ok bool, err error)
	// AccountIDs returns the uid/gid of username.
	AccountIDs(username string) (uid, gid int, err error)
	// FileSize returns the size of path, or ok=false if it does not exist.
	FileSize(path string) (size int64, ok bool, err error)
	// FilesystemType probes the filesystem signature of an image file.
	FilesystemType(ctx context.Context, path string) (string, error)
	// Mounts lists the current mount table.
	Mounts() ([]Mount, error)
	// RestrictedLogin returns the chroot directory of username's sftp-only
	// entry, or ok=false if no entry is registered.
	RestrictedLogin(username string) (chrootDir string, ok bool, err error)
	// OwnerOf returns the uid/gid owning path.
	OwnerOf(path string) (uid, gid int, err error)
	// DirExists reports whether path exists and is a directory.
	DirExists(path string) (bool, error)
}

// checkArgs rejects malformed operation arguments before anything execs.
// Shapes are deliberately strict: paths absolute, devices under /dev/loop,
// usernames matching the system syntax.
func checkArgs(op Op, args []string) error {
	fail := func(why string) error { return fmt.Errorf("%w: %s %v: %s", ErrBadArgs, op, args, why) }
	switch op {
	case OpCreateAccount:
		if len(args) != 2 {
			return fail("want username, baseDir")
		}
		if err := validate.Username(args[0]); err != nil {
			return fail(err.Error())
		}
		if err := validate.AbsPath(args[1]); err != nil {
			return fail(err.Error())
		}
	case OpDeleteAccount, OpClearRestrictedLogin:
		if len(args) != 1 {
			return fail("want username")
		}
		if err := validate.Username(args[0]); err != nil {
			return fail(err.Error())
		}
	case OpCreateFilesystemImg:
		if len(args) != 2 {
			return fail("want path, quotaMiB")
		}
		if err := validate.AbsPath(args[0]); err != nil {
			return fail(err.Error())
		}
		if n, err := strconv.ParseUint(args[1], 10, 64); err != nil || n == 0 {
			return fail("quota must be a positive integer")
		}
	case OpDeleteFile, OpUnmount, OpUnbindChroot:
		if len(args) != 1 {
			return fail("want path")
		}
		if err := validate.AbsPath(args[0]); err != nil {
			return fail(err.Error())
		}
	case OpAttachLoopDevice:
		if len(args) != 1 {
			return fail("want image path")
		}
		if err := validate.AbsPath(args[0]); err != nil {
			return fail(err.Error())
		}
	case OpDetachLoopDevice:
		if len(args) != 1 || !validLoopDevice(args[0]) {
			return fail("want /dev/loopN")
		}
	case OpMount:
		if len(args) != 2 {
			return fail("want loopDevice, target")
		}
		if !validLoopDevice(args[0]) {
			return fail("source must be /dev/loopN")
		}
		if err := validate.AbsPath(args[1]); err != nil {
			return fail(err.Error())
		}
	case OpBindChroot, OpSetRestrictedLogin:
		if len(args) != 2 {
			return fail("want two args")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}
	// second-position username/path shapes for the two-arg ops above
	switch op {
	case OpBindChroot:
		if err := validate.AbsPath(args[0]); err != nil {
			return fail(err.Error())
		}
		if err := validate.Username(args[1]); err != nil {
			return fail(err.Error())
		}
	case OpSetRestrictedLogin:
		if err := validate.Username(args[0]); err != nil {
			return fail(err.Error())
		}
		if err := validate.AbsPath(args[1]); err != nil {
			return fail(err.Error())
		}
	}
	return nil
}

func validLoopDevice(p string) bool {
	if !strings.HasPrefix(p, "/dev/loop") || strings.ContainsAny(p, " \t\n\r\x00") {
		return false
	}
	suffix := strings.TrimPrefix(p, "/dev/loop")
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
