// Package steps holds one executor per provisioned resource. Apply,
// Verify and Rollback for a resource live side by side so undo logic
// cannot drift away from creation logic.
package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// ErrConflict marks a Verify result where the resource exists but in a
// configuration incompatible with the request. Probe failures (a read of
// host state erroring) are ordinary errors, not conflicts.
var ErrConflict = errors.New("resource exists in a conflicting configuration")

// Executor is the capability set every resource type implements.
type Executor interface {
	Kind() plan.Kind
	// Apply creates the resource through the gateway.
	Apply(ctx context.Context, sc *Context) error
	// Verify reports whether the resource already exists in the expected
	// configuration; used for idempotent re-entry, never mutates.
	Verify(ctx context.Context, sc *Context) (bool, error)
	// Rollback undoes the resource best-effort; it must tolerate a
	// partially created resource.
	Rollback(ctx context.Context, sc *Context) error
}

// State is the durable per-transaction scratchpad shared by the executors.
// The engine journals it after every step transition so an interrupted run
// can be resumed or rolled back with the same knowledge.
type State struct {
	// CreatedUser marks that this transaction created the account, as
	// opposed to resuming over a pre-existing one. Rollback only deletes
	// accounts it created.
	CreatedUser bool `json:"createdUser"`
	// LoopDevice is the device the volume image got attached to.
	LoopDevice string `json:"loopDevice,omitempty"`
}

// Context carries everything an executor needs for one transaction.
type Context struct {
	Req   plan.Request
	GW    gateway.Gateway
	Host  gateway.Host
	Log   zerolog.Logger
	State *State
}

// ForKind returns the executor implementing k.
func ForKind(k plan.Kind) (Executor, error) {
	switch k {
	case plan.KindCreateUser:
		return createUser{}, nil
	case plan.KindCreateVolume:
		return createVolume{}, nil
	case plan.KindMountVolume:
		return mountVolume{}, nil
	case plan.KindChrootJail:
		return chrootJail{}, nil
	case plan.KindCreateSftpAccount:
		return createSftpAccount{}, nil
	}
	return nil, fmt.Errorf("no executor for step kind %q", k)
}
