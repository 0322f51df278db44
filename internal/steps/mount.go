package steps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// mountTableMu serializes every mount/unmount and loop attach/detach in the
// process. The kernel mount table and the loop allocation table are shared
// across all usernames, so concurrent Provision calls must not race them.
var mountTableMu sync.Mutex

const unmountAttempts = 5

// test seams
var (
	unmountBackoff = 200 * time.Millisecond
	unmountSleep   = time.Sleep
)

// mountVolume attaches the volume image to a free loop device and mounts it
// at the per-user mount point.
type mountVolume struct{}

func (mountVolume) Kind() plan.Kind { return plan.KindMountVolume }

func (mountVolume) Apply(ctx context.Context, sc *Context) error {
	mountTableMu.Lock()
	defer mountTableMu.Unlock()

	// a previous interrupted run may have attached and mounted already
	if dev, mounted, err := findMount(sc); err != nil {
		return err
	} else if mounted {
		sc.State.LoopDevice = dev
		sc.Log.Info().Str("target", sc.Req.MountPoint()).Msg("already mounted, treating as satisfied")
		return nil
	}

	res, err := sc.GW.Execute(ctx, gateway.OpAttachLoopDevice, []string{sc.Req.VolumePath()})
	if err != nil {
		return err
	}
	dev := res.Out()
	if !strings.HasPrefix(dev, "/dev/loop") {
		return fmt.Errorf("loop attach returned unexpected device %q", dev)
	}
	sc.State.LoopDevice = dev

	if _, err := sc.GW.Execute(ctx, gateway.OpMount, []string{dev, sc.Req.MountPoint()}); err != nil {
		// the attach succeeded; detach so a failed mount leaves no
		// dangling loop device for rollback to chase
		if _, derr := sc.GW.Execute(ctx, gateway.OpDetachLoopDevice, []string{dev}); derr != nil {
			// State.LoopDevice stays set so rollback retries the detach
			sc.Log.Error().Err(derr).Str("device", dev).Msg("loop device still attached after failed mount")
			return fmt.Errorf("mount failed: %w; detach %s: %v", err, dev, derr)
		}
		sc.State.LoopDevice = ""
		return err
	}
	sc.Log.Info().Str("device", dev).Str("target", sc.Req.MountPoint()).Msg("volume mounted")
	return nil
}

func (mountVolume) Verify(ctx context.Context, sc *Context) (bool, error) {
	dev, mounted, err := findMount(sc)
	if err != nil || !mounted {
		return false, err
	}
	sc.State.LoopDevice = dev
	return true, nil
}

// Rollback unmounts with bounded retries (the target may be transiently
// busy) and then detaches the loop device.
func (mountVolume) Rollback(ctx context.Context, sc *Context) error {
	mountTableMu.Lock()
	defer mountTableMu.Unlock()

	dev, mounted, err := findMount(sc)
	if err != nil {
		return err
	}
	if mounted {
		var uerr error
		for attempt := 1; attempt <= unmountAttempts; attempt++ {
			if _, uerr = sc.GW.Execute(ctx, gateway.OpUnmount, []string{sc.Req.MountPoint()}); uerr == nil {
				break
			}
			if attempt == unmountAttempts {
				break
			}
			sc.Log.Warn().Err(uerr).Int("attempt", attempt).Str("target", sc.Req.MountPoint()).Msg("unmount failed, retrying")
			unmountSleep(time.Duration(attempt) * unmountBackoff)
		}
		if uerr != nil {
			return fmt.Errorf("unmount %s after %d attempts: %w", sc.Req.MountPoint(), unmountAttempts, uerr)
		}
	}
	if dev == "" {
		dev = sc.State.LoopDevice
	}
	if dev != "" {
		if _, err := sc.GW.Execute(ctx, gateway.OpDetachLoopDevice, []string{dev}); err != nil {
			return err
		}
		sc.State.LoopDevice = ""
	}
	return nil
}

// findMount looks for the per-user mount point in the host mount table and
// returns the loop device backing it.
func findMount(sc *Context) (dev string, mounted bool, err error) {
	mounts, err := sc.Host.Mounts()
	if err != nil {
		return "", false, err
	}
	for _, m := range mounts {
		if m.Target == sc.Req.MountPoint() {
			if !strings.HasPrefix(m.Device, "/dev/loop") {
				return "", false, fmt.Errorf("%w: mount point %s is backed by %s, not a loop device",
					ErrConflict, m.Target, m.Device)
			}
			return m.Device, true, nil
		}
	}
	return "", false, nil
}
