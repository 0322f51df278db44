package steps

import (
	"context"
	"fmt"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// createUser provisions the system account with its home directory under
// the user base. The account gets no functional login shell; sftp access
// comes later from the restricted-login step.
type createUser struct{}

func (createUser) Kind() plan.Kind { return plan.KindCreateUser }

func (createUser) Apply(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpCreateAccount, []string{sc.Req.Username, sc.Req.UserBase})
	if err != nil {
		return err
	}
	sc.State.CreatedUser = true
	sc.Log.Info().Str("user", sc.Req.Username).Str("home", sc.Req.HomeDir()).Msg("account created")
	return nil
}

func (createUser) Verify(ctx context.Context, sc *Context) (bool, error) {
	home, ok, err := sc.Host.AccountHome(sc.Req.Username)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if home != sc.Req.HomeDir() {
		return false, fmt.Errorf("%w: account %s exists with home %s, want %s",
			ErrConflict, sc.Req.Username, home, sc.Req.HomeDir())
	}
	return true, nil
}

func (createUser) Rollback(ctx context.Context, sc *Context) error {
	if !sc.State.CreatedUser {
		sc.Log.Warn().Str("user", sc.Req.Username).Msg("account not created by this run, leaving it")
		return nil
	}
	_, err := sc.GW.Execute(ctx, gateway.OpDeleteAccount, []string{sc.Req.Username})
	return err
}
