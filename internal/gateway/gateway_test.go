package gateway

import (
	"errors"
	"testing"
)

func TestCheckArgsShapes(t *testing.T) {
	valid := []struct {
		op   Op
		args []string
	}{
		{OpCreateAccount, []string{"alice", "/srv/users"}},
		{OpDeleteAccount, []string{"alice"}},
		{OpCreateFilesystemImg, []string{"/srv/users/alice/volume", "500"}},
		{OpDeleteFile, []string{"/srv/users/alice/volume"}},
		{OpAttachLoopDevice, []string{"/srv/users/alice/volume"}},
		{OpDetachLoopDevice, []string{"/dev/loop3"}},
		{OpMount, []string{"/dev/loop3", "/srv/mnt/alice"}},
		{OpUnmount, []string{"/srv/mnt/alice"}},
		{OpBindChroot, []string{"/srv/mnt/alice", "alice"}},
		{OpUnbindChroot, []string{"/srv/mnt/alice"}},
		{OpSetRestrictedLogin, []string{"alice", "/srv/mnt/alice"}},
		{OpClearRestrictedLogin, []string{"alice"}},
	}
	for _, tc := range valid {
		if err := checkArgs(tc.op, tc.args); err != nil {
			t.Fatalf("%s %v: unexpected rejection: %v", tc.op, tc.args, err)
		}
	}

	invalid := []struct {
		op   Op
		args []string
	}{
		{OpCreateAccount, []string{"alice"}},
		{OpCreateAccount, []string{"Bad User", "/srv/users"}},
		{OpCreateAccount, []string{"alice", "relative/path"}},
		{OpCreateFilesystemImg, []string{"/srv/users/alice/volume", "0"}},
		{OpCreateFilesystemImg, []string{"/srv/users/alice/volume", "abc"}},
		{OpDetachLoopDevice, []string{"/dev/sda"}},
		{OpDetachLoopDevice, []string{"/dev/loop"}},
		{OpMount, []string{"/dev/sda1", "/srv/mnt/alice"}},
		{OpMount, []string{"/dev/loop0", "mnt/alice"}},
		{OpUnmount, []string{"/srv/mnt/alice", "extra"}},
		{OpSetRestrictedLogin, []string{"/srv/mnt/alice", "alice"}},
		{Op("rm-rf"), []string{"/"}},
	}
	for _, tc := range invalid {
		err := checkArgs(tc.op, tc.args)
		if err == nil {
			t.Fatalf("%s %v: expected rejection", tc.op, tc.args)
		}
		if !errors.Is(err, ErrBadArgs) && !errors.Is(err, ErrUnknownOp) {
			t.Fatalf("%s %v: unexpected error class: %v", tc.op, tc.args, err)
		}
	}
}

func TestValidLoopDevice(t *testing.T) {
	for _, d := range []string{"/dev/loop0", "/dev/loop12"} {
		if !validLoopDevice(d) {
			t.Fatalf("expected %q valid", d)
		}
	}
	for _, d := range []string{"", "/dev/loop", "/dev/loopX", "/dev/sda", "/dev/loop0 ", "loop0"} {
		if validLoopDevice(d) {
			t.Fatalf("expected %q invalid", d)
		}
	}
}
