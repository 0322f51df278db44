package gateway

import (
	"context"
	"errors"
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"mkwebuser/pkg/shell"
)

// LocalHost inspects the running host. All methods are read-only.
type LocalHost struct {
	SSHDConfigPath string
}

func (h *LocalHost) AccountHome(username string) (string, bool, error) {
	u, err := user.Lookup(username)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return "", false, nil
		}
		return "", false, err
	}
	return u.HomeDir, true, nil
}

func (h *LocalHost) AccountIDs(username string) (int, int, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func (h *LocalHost) FileSize(path string) (int64, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return fi.Size(), true, nil
}

// FilesystemType asks blkid for the signature of an image file. An image
// with no recognizable filesystem yields an empty string, not an error.
func (h *LocalHost) FilesystemType(ctx context.Context, path string) (string, error) {
	res, err := shell.Run(ctx, 10*time.Second, "blkid", "-s", "TYPE", "-o", "value", path)
	if err != nil {
		// blkid exits 2 when no signature is found
		if res.Code == 2 {
			return "", nil
		}
		return "", err
	}
	return res.Out(), nil
}

func (h *LocalHost) Mounts() ([]Mount, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, err
	}
	out := make([]Mount, 0, len(parts))
	for _, p := range parts {
		out = append(out, Mount{Device: p.Device, Target: p.Mountpoint, FSType: p.Fstype})
	}
	return out, nil
}

func (h *LocalHost) RestrictedLogin(username string) (string, bool, error) {
	return restrictedLoginEntry(h.SSHDConfigPath, username)
}

func (h *LocalHost) OwnerOf(path string) (int, int, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, os.ErrInvalid
	}
	return int(st.Uid), int(st.Gid), nil
}

func (h *LocalHost) DirExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}
