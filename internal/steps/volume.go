package steps

import (
	"context"
	"fmt"
	"strconv"

	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

// createVolume allocates the quota-sized ext4 image inside the home
// directory. The image being its own filesystem is what makes the quota a
// hard cap rather than an accounting limit.
type createVolume struct{}

func (createVolume) Kind() plan.Kind { return plan.KindCreateVolume }

func (createVolume) Apply(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpCreateFilesystemImg,
		[]string{sc.Req.VolumePath(), strconv.FormatUint(sc.Req.QuotaMiB, 10)})
	if err != nil {
		return err
	}
	sc.Log.Info().Str("path", sc.Req.VolumePath()).Uint64("mib", sc.Req.QuotaMiB).Msg("volume created")
	return nil
}

func (createVolume) Verify(ctx context.Context, sc *Context) (bool, error) {
	size, ok, err := sc.Host.FileSize(sc.Req.VolumePath())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	want := int64(sc.Req.QuotaMiB) * 1024 * 1024
	if size != want {
		return false, fmt.Errorf("%w: volume %s has size %d, want %d", ErrConflict, sc.Req.VolumePath(), size, want)
	}
	fsType, err := sc.Host.FilesystemType(ctx, sc.Req.VolumePath())
	if err != nil {
		return false, err
	}
	if fsType != "ext4" {
		return false, fmt.Errorf("%w: volume %s has filesystem %q, want ext4", ErrConflict, sc.Req.VolumePath(), fsType)
	}
	return true, nil
}

func (createVolume) Rollback(ctx context.Context, sc *Context) error {
	_, err := sc.GW.Execute(ctx, gateway.OpDeleteFile, []string{sc.Req.VolumePath()})
	return err
}
