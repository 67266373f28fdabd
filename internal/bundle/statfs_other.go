//go:build !linux

package bundle

// freeSpace is unavailable off Linux; the preflight check is skipped and a
// full disk surfaces as a write error instead.
func freeSpace(string) (int64, bool) {
	return 0, false
}
