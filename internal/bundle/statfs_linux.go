//go:build linux

package bundle

import "golang.org/x/sys/unix"

// freeSpace reports the bytes available to unprivileged writers on the
// filesystem holding path. ok is false when the answer is unknown, in which
// case the preflight check is skipped and a full disk surfaces as a write
// error instead.
func freeSpace(path string) (int64, bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false
	}
	return int64(st.Bavail) * st.Bsize, true //nolint:gosec // Bavail fits in int64 on real filesystems
}
