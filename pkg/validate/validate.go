package validate

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	reUsername = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	ErrBadUsername = errors.New("invalid username")
	ErrReserved    = errors.New("username is reserved")
	ErrBadQuota    = errors.New("invalid quota")
	ErrBadPath     = errors.New("path must be absolute")
)

// reserved covers accounts every distribution ships with; provisioning one
// of these would clobber system state.
var reserved = map[string]struct{}{
	"root": {}, "daemon": {}, "bin": {}, "sys": {}, "sync": {},
	"games": {}, "man": {}, "lp": {}, "mail": {}, "news": {},
	"uucp": {}, "proxy": {}, "www-data": {}, "backup": {}, "list": {},
	"irc": {}, "nobody": {}, "sshd": {}, "messagebus": {}, "systemd-network": {},
}

// Username checks s against the system account-name syntax accepted by
// useradd and rejects well-known system accounts.
func Username(s string) error {
	if !reUsername.MatchString(s) {
		return ErrBadUsername
	}
	if _, ok := reserved[s]; ok {
		return ErrReserved
	}
	return nil
}

// QuotaMiB checks that q is positive and within maxMiB.
func QuotaMiB(q, maxMiB uint64) error {
	if q == 0 || q > maxMiB {
		return ErrBadQuota
	}
	return nil
}

// AbsPath checks that p is a clean absolute path with no embedded
// whitespace or NUL, suitable for handing to privileged commands.
func AbsPath(p string) error {
	if p == "" || !filepath.IsAbs(p) {
		return ErrBadPath
	}
	if filepath.Clean(p) != p {
		return ErrBadPath
	}
	if strings.ContainsAny(p, " \t\n\r\x00") {
		return ErrBadPath
	}
	return nil
}

// PathUnder reports whether p equals root or lives beneath it.
func PathUnder(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}
