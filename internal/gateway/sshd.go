package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Match blocks are wrapped in marker comments so removal never has to parse
// sshd_config semantics, only find its own markers.
func markerBegin(username string) string { return "# mkwebuser:" + username + " begin" }
func markerEnd(username string) string   { return "# mkwebuser:" + username + " end" }

func sftpMatchBlock(username, chrootDir string) string {
	return strings.Join([]string{
		markerBegin(username),
		"Match User " + username,
		"    ChrootDirectory " + chrootDir,
		"    ForceCommand internal-sftp",
		"    AllowTcpForwarding no",
		"    X11Forwarding no",
		markerEnd(username),
	}, "\n")
}

// ensureSftpMatchBlock appends the sftp-only Match block for username unless
// one is already present. The rewrite is atomic: tmp file, fsync, rename.
func ensureSftpMatchBlock(path, username, chrootDir string) error {
	data := ""
	if b, err := os.ReadFile(path); err == nil {
		data = string(b)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if strings.Contains(data, markerBegin(username)) {
		return nil
	}
	if data != "" && !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	data += sftpMatchBlock(username, chrootDir) + "\n"
	return writeConfig(path, data)
}

// removeSftpMatchBlock drops everything between username's markers,
// inclusive. Missing markers are not an error; there is nothing to remove.
func removeSftpMatchBlock(path, username string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	lines := strings.Split(string(b), "\n")
	out := make([]string, 0, len(lines))
	skipping := false
	for _, ln := range lines {
		switch {
		case strings.TrimSpace(ln) == markerBegin(username):
			skipping = true
		case strings.TrimSpace(ln) == markerEnd(username):
			skipping = false
		case !skipping:
			out = append(out, ln)
		}
	}
	return writeConfig(path, strings.Join(out, "\n"))
}

// restrictedLoginEntry scans the config for username's marker block and
// returns the ChrootDirectory it names.
func restrictedLoginEntry(path, username string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	inBlock := false
	for _, ln := range strings.Split(string(b), "\n") {
		t := strings.TrimSpace(ln)
		switch {
		case t == markerBegin(username):
			inBlock = true
		case t == markerEnd(username):
			return "", false, nil
		case inBlock && strings.HasPrefix(t, "ChrootDirectory "):
			return strings.TrimSpace(strings.TrimPrefix(t, "ChrootDirectory ")), true, nil
		}
	}
	return "", false, nil
}

func writeConfig(path, data string) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return fsyncDir(filepath.Dir(path))
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
