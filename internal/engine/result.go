package engine

import (
	"errors"
	"fmt"

	"mkwebuser/internal/plan"
)

var (
	// ErrLocked means another Provision call for the same username holds
	// the exclusivity lock. Fast-fail, never queued.
	ErrLocked = errors.New("provisioning already in progress for this username")
	// ErrResourceConflict means a resource already exists in a state
	// incompatible with resuming this request.
	ErrResourceConflict = errors.New("existing resource conflicts with request")
)

type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeRolledBack         Outcome = "rolled-back"
	OutcomeRollbackIncomplete Outcome = "rollback-incomplete"
)

// Result is the terminal outcome of one Provision call. Cause is always the
// original apply failure; rollback errors are carried alongside it, never in
// its place.
type Result struct {
	TxID         string
	Plan         *plan.Plan
	Outcome      Outcome
	Cause        error
	RollbackErrs []error
	// Residual names every resource left on the host because its rollback
	// failed. Non-empty exactly when Outcome is rollback-incomplete.
	Residual []string

	// appliedCount is how many steps this run actually applied (satisfied
	// skips excluded); used to tell a pre-side-effect conflict apart from
	// a failure that had something to undo.
	appliedCount int
	// rollbackRan records that at least one rollback executed, so the
	// outcome is never reported as side-effect free.
	rollbackRan bool
}

// residualName describes the on-host resource a step leaves behind when its
// rollback fails.
func residualName(k plan.Kind, req plan.Request) string {
	switch k {
	case plan.KindCreateUser:
		return fmt.Sprintf("system account %s (home %s)", req.Username, req.HomeDir())
	case plan.KindCreateVolume:
		return fmt.Sprintf("volume image %s", req.VolumePath())
	case plan.KindMountVolume:
		return fmt.Sprintf("mount at %s", req.MountPoint())
	case plan.KindChrootJail:
		return fmt.Sprintf("chroot jail skeleton at %s", req.MountPoint())
	case plan.KindCreateSftpAccount:
		return fmt.Sprintf("sftp login restriction for %s", req.Username)
	}
	return string(k)
}
