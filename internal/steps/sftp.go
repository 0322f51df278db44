package steps

import (
	"context"
	"fmt"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// createSftpAccount registers the sftp-only login restriction: an sshd
// Match block forcing internal-sftp and confining the session to the jail.
type createSftpAccount struct{}

func (createSftpAccount) Kind() plan.Kind { return plan.KindCreateSftpAccount }

func (createSftpAccount) Apply(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpSetRestrictedLogin, []string{sc.Req.Username, sc.Req.MountPoint()})
	if err != nil {
		return err
	}
	sc.Log.Info().Str("user", sc.Req.Username).Str("chroot", sc.Req.MountPoint()).Msg("sftp-only login registered")
	return nil
}

func (createSftpAccount) Verify(ctx context.Context, sc *Context) (bool, error) {
	chrootDir, ok, err := sc.Host.RestrictedLogin(sc.Req.Username)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if chrootDir != sc.Req.MountPoint() {
		return false, fmt.Errorf("%w: restricted login for %s points at %s, want %s",
			ErrConflict, sc.Req.Username, chrootDir, sc.Req.MountPoint())
	}
	return true, nil
}

func (createSftpAccount) Rollback(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpClearRestrictedLogin, []string{sc.Req.Username})
	return err
}
