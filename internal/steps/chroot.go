package steps

import (
	"context"
	"fmt"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// chrootJail turns the mounted volume into a jail root sshd will accept:
// root-owned top directory plus a user-owned data directory for uploads.
type chrootJail struct{}

func (chrootJail) Kind() plan.Kind { return plan.KindChrootJail }

func (chrootJail) Apply(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpBindChroot, []string{sc.Req.MountPoint(), sc.Req.Username})
	if err != nil {
		return err
	}
	sc.Log.Info().Str("jail", sc.Req.MountPoint()).Msg("chroot jail prepared")
	return nil
}

func (chrootJail) Verify(ctx context.Context, sc *Context) (bool, error) {
	uid, gid, err := sc.Host.OwnerOf(sc.Req.MountPoint())
	if err != nil {
		return false, err
	}
	if uid != 0 || gid != 0 {
		return false, nil
	}
	dataDir := sc.Req.MountPoint() + "/data"
	ok, err := sc.Host.DirExists(dataDir)
	if err != nil || !ok {
		return false, err
	}
	wantUID, wantGID, err := sc.Host.AccountIDs(sc.Req.Username)
	if err != nil {
		return false, err
	}
	uid, gid, err = sc.Host.OwnerOf(dataDir)
	if err != nil {
		return false, err
	}
	if uid != wantUID || gid != wantGID {
		return false, fmt.Errorf("%w: jail data dir %s owned by %d:%d, want %d:%d",
			ErrConflict, dataDir, uid, gid, wantUID, wantGID)
	}
	return true, nil
}

// Rollback removes only the jail skeleton; the mount and volume are undone
// by their own steps.
func (chrootJail) Rollback(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpUnbindChroot, []string{sc.Req.MountPoint()})
	return err
}
