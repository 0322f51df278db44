package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mkwebuser/internal/gateway"
	"mkwebuser/pkg/shell"
)

// fakeHost models the mutable host state the five steps touch: account
// database, filesystem, loop allocation, mount table and sshd config. It
// implements both sides of the boundary so verify probes observe exactly
// what executed operations produced.
type fakeHost struct {
	mu         sync.Mutex
	accounts   map[string]string // username -> home dir
	uids       map[string][2]int
	files      map[string]int64 // path -> size bytes
	fsTypes    map[string]string
	attached   map[string]string // loop device -> image path
	mounts     map[string]string // target -> device
	owners     map[string][2]int
	dirs       map[string]bool
	restricted map[string]string // username -> chroot dir

	loopSeq   int
	ops       []gateway.Op         // every executed mutating operation, in order
	fail      map[gateway.Op]error // injected failures
	mountsErr error                // injected mount-table probe failure

	blockOp  gateway.Op // optional: block this op until release is closed
	started  chan struct{}
	release  chan struct{}
	blockOne sync.Once
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		accounts:   map[string]string{},
		uids:       map[string][2]int{},
		files:      map[string]int64{},
		fsTypes:    map[string]string{},
		attached:   map[string]string{},
		mounts:     map[string]string{},
		owners:     map[string][2]int{},
		dirs:       map[string]bool{},
		restricted: map[string]string{},
		fail:       map[gateway.Op]error{},
	}
}

func (f *fakeHost) Execute(_ context.Context, op gateway.Op, args []string) (shell.Result, error) {
	if op == f.blockOp && f.started != nil {
		f.blockOne.Do(func() { close(f.started) })
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	if err := f.fail[op]; err != nil {
		return shell.Result{}, err
	}

	switch op {
	case gateway.OpCreateAccount:
		u, base := args[0], args[1]
		home := base + "/" + u
		f.accounts[u] = home
		f.uids[u] = [2]int{1000, 1000}
		f.dirs[home] = true
	case gateway.OpDeleteAccount:
		u := args[0]
		home := f.accounts[u]
		delete(f.accounts, u)
		delete(f.uids, u)
		delete(f.dirs, home)
		for p := range f.files {
			if strings.HasPrefix(p, home+"/") {
				delete(f.files, p)
				delete(f.fsTypes, p)
			}
		}
	case gateway.OpCreateFilesystemImg:
		path := args[0]
		mib, _ := strconv.ParseInt(args[1], 10, 64)
		f.files[path] = mib * 1024 * 1024
		f.fsTypes[path] = "ext4"
	case gateway.OpDeleteFile:
		delete(f.files, args[0])
		delete(f.fsTypes, args[0])
	case gateway.OpAttachLoopDevice:
		f.loopSeq++
		dev := fmt.Sprintf("/dev/loop%d", f.loopSeq)
		f.attached[dev] = args[0]
		return shell.Result{Stdout: []byte(dev + "\n")}, nil
	case gateway.OpDetachLoopDevice:
		delete(f.attached, args[0])
	case gateway.OpMount:
		dev, target := args[0], args[1]
		f.mounts[target] = dev
		f.owners[target] = [2]int{0, 0}
		f.dirs[target] = true
	case gateway.OpUnmount:
		delete(f.mounts, args[0])
	case gateway.OpBindChroot:
		target, u := args[0], args[1]
		f.owners[target] = [2]int{0, 0}
		f.dirs[target+"/data"] = true
		f.owners[target+"/data"] = f.uids[u]
	case gateway.OpUnbindChroot:
		delete(f.dirs, args[0]+"/data")
		delete(f.owners, args[0]+"/data")
	case gateway.OpSetRestrictedLogin:
		f.restricted[args[0]] = args[1]
	case gateway.OpClearRestrictedLogin:
		delete(f.restricted, args[0])
	default:
		return shell.Result{}, fmt.Errorf("fake: unhandled op %s", op)
	}
	return shell.Result{}, nil
}

func (f *fakeHost) AccountHome(username string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	home, ok := f.accounts[username]
	return home, ok, nil
}

func (f *fakeHost) AccountIDs(username string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.uids[username]
	if !ok {
		return 0, 0, fmt.Errorf("fake: unknown user %s", username)
	}
	return ids[0], ids[1], nil
}

func (f *fakeHost) FileSize(path string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[path]
	return size, ok, nil
}

func (f *fakeHost) FilesystemType(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fsTypes[path], nil
}

func (f *fakeHost) Mounts() ([]gateway.Mount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mountsErr != nil {
		return nil, f.mountsErr
	}
	out := make([]gateway.Mount, 0, len(f.mounts))
	for target, dev := range f.mounts {
		out = append(out, gateway.Mount{Device: dev, Target: target, FSType: "ext4"})
	}
	return out, nil
}

func (f *fakeHost) RestrictedLogin(username string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, ok := f.restricted[username]
	return dir, ok, nil
}

func (f *fakeHost) OwnerOf(path string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.owners[path]
	if !ok {
		return 0, 0, fmt.Errorf("fake: no owner recorded for %s", path)
	}
	return ids[0], ids[1], nil
}

func (f *fakeHost) DirExists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[path], nil
}

func (f *fakeHost) opLog() []gateway.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Op(nil), f.ops...)
}

func (f *fakeHost) resetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

// clean reports whether no provisioned resource remains on the fake host.
func (f *fakeHost) clean() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts) == 0 && len(f.files) == 0 &&
		len(f.attached) == 0 && len(f.mounts) == 0 && len(f.restricted) == 0
}
