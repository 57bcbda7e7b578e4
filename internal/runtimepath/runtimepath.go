// Package runtimepath locates the per-user, per-display runtime files of
// the daemon.
package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// SocketEnv overrides the daemon socket path when set.
const SocketEnv = "WINTILE_SOCKET"

// Dir returns the runtime directory used for the IPC socket: the first of
// XDG_RUNTIME_DIR, /run/user/<uid>, or a private /tmp/wintile-runtime-<uid>.
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}
	return privateTmpDir(fmt.Sprintf("/tmp/wintile-runtime-%d", uid), uid)
}

// privateTmpDir creates dir if needed and refuses one another user could
// have planted in the shared /tmp.
func privateTmpDir(dir string, uid int) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		return "", fmt.Errorf("failed to stat runtime dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("runtime dir %s is not a directory", dir)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != uid {
		return "", fmt.Errorf("runtime dir %s is owned by uid %d", dir, st.Uid)
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(dir, 0700); err != nil {
			return "", fmt.Errorf("failed to restrict runtime dir: %w", err)
		}
	}
	return dir, nil
}

// SocketPath returns the daemon IPC socket path for the current DISPLAY.
// One daemon runs per X display, so each display gets its own socket.
func SocketPath() (string, error) {
	if p := os.Getenv(SocketEnv); p != "" {
		return p, nil
	}
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, SocketName(os.Getenv("DISPLAY"))), nil
}

// SocketName maps an X display name to a socket file name. The screen
// number is dropped: one daemon manages every screen of a display.
//
//	""             -> wintile.sock
//	":0" / ":0.1"  -> wintile-0.sock
//	"host:10.0"    -> wintile-host-10.sock
func SocketName(display string) string {
	display = strings.TrimSpace(display)
	if display == "" {
		return "wintile.sock"
	}
	host, num, _ := strings.Cut(display, ":")
	if dot := strings.IndexByte(num, '.'); dot >= 0 {
		num = num[:dot]
	}
	name := num
	if host != "" {
		name = host + "-" + num
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.Trim(name, "-"))
	if name == "" {
		return "wintile.sock"
	}
	return "wintile-" + name + ".sock"
}
