package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"mkwebuser/pkg/validate"
)

// Validation failures; all detected before any privileged operation runs.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidQuota    = errors.New("invalid quota")
	ErrPathConflict    = errors.New("conflicting base paths")
)

// Request describes one provisioning transaction. All fields are validated
// by Build before a plan exists; an invalid request never reaches the engine.
type Request struct {
	Username  string `json:"username"`
	QuotaMiB  uint64 `json:"quotaMiB"`
	UserBase  string `json:"userBase"`
	MountBase string `json:"mountBase"`
}

// HomeDir is the account home the CreateUser step produces.
func (r Request) HomeDir() string {
	return filepath.Join(r.UserBase, r.Username)
}

// VolumePath is the filesystem image inside the home directory.
func (r Request) VolumePath() string {
	return filepath.Join(r.HomeDir(), "volume")
}

// MountPoint is where the volume gets attached.
func (r Request) MountPoint() string {
	return filepath.Join(r.MountBase, r.Username)
}

type Kind string

const (
	KindCreateUser        Kind = "create-user"
	KindCreateVolume      Kind = "create-volume"
	KindMountVolume       Kind = "mount-volume"
	KindChrootJail        Kind = "chroot-jail"
	KindCreateSftpAccount Kind = "create-sftp-account"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApplying Status = "applying"
	StatusApplied  Status = "applied"
	// StatusSatisfied marks a step whose resource already existed in the
	// expected configuration, so nothing was applied this run.
	StatusSatisfied      Status = "satisfied"
	StatusFailed         Status = "failed"
	StatusRolledBack     Status = "rolledback"
	StatusRollbackFailed Status = "rollbackfailed"
)

// Step is one entry of a plan. Status and timestamps are mutated only by
// the orchestration engine that owns the plan.
type Step struct {
	Kind        Kind       `json:"kind"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Err         string     `json:"err,omitempty"`
}

// Plan is the fixed five-step sequence derived from a valid request. Order
// matters: each step's preconditions are the previous step's postconditions.
type Plan struct {
	Request Request `json:"request"`
	Steps   []Step  `json:"steps"`
}

// Build validates req and produces its plan. Pure: no host state is
// inspected and nothing is executed.
func Build(req Request, maxQuotaMiB uint64) (*Plan, error) {
	if err := validate.Username(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if err := validate.QuotaMiB(req.QuotaMiB, maxQuotaMiB); err != nil {
		return nil, fmt.Errorf("%w: %d MiB (max %d)", ErrInvalidQuota, req.QuotaMiB, maxQuotaMiB)
	}
	for _, p := range []string{req.UserBase, req.MountBase} {
		if err := validate.AbsPath(p); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrPathConflict, p)
		}
	}
	if req.UserBase == req.MountBase {
		return nil, fmt.Errorf("%w: base and mountbase are identical", ErrPathConflict)
	}
	if validate.PathUnder(req.HomeDir(), req.MountPoint()) || validate.PathUnder(req.MountPoint(), req.HomeDir()) {
		return nil, fmt.Errorf("%w: home and mount point overlap", ErrPathConflict)
	}

	steps := []Step{
		{Kind: KindCreateUser, Description: fmt.Sprintf("create system account %s (home %s)", req.Username, req.HomeDir())},
		{Kind: KindCreateVolume, Description: fmt.Sprintf("allocate %d MiB ext4 image at %s", req.QuotaMiB, req.VolumePath())},
		{Kind: KindMountVolume, Description: fmt.Sprintf("loop-mount %s at %s", req.VolumePath(), req.MountPoint())},
		{Kind: KindChrootJail, Description: fmt.Sprintf("prepare chroot jail at %s", req.MountPoint())},
		{Kind: KindCreateSftpAccount, Description: fmt.Sprintf("restrict %s to sftp-only login", req.Username)},
	}
	for i := range steps {
		steps[i].Status = StatusPending
	}
	return &Plan{Request: req, Steps: steps}, nil
}
