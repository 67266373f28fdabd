package scan

import (
	"path/filepath"
	"time"
)

// FileRecord captures one regular file at scan time. Records are immutable:
// built during the walk, consumed by classification and manifest building,
// then discarded. The filesystem itself is the only state carried between
// runs.
type FileRecord struct {
	Path    string // absolute local path
	RelPath string // path relative to the scan root, host-native separators
	Size    int64
	ModTime time.Time
}

// Base returns the file's base name, which is also its entry name inside an
// archive bundle.
func (r FileRecord) Base() string { return filepath.Base(r.Path) }

// DirectoryGroup is all qualifying files sharing one immediate parent
// directory. Dir is relative to the scan root ("." for the root itself).
// Groups are never empty: the scanner only emits a group after matching at
// least one file in it.
type DirectoryGroup struct {
	Dir     string
	Records []FileRecord
}

// TotalBytes is the sum of the group's file sizes.
func (g DirectoryGroup) TotalBytes() int64 {
	var total int64
	for _, r := range g.Records {
		total += r.Size
	}
	return total
}

// Len is the number of files in the group.
func (g DirectoryGroup) Len() int { return len(g.Records) }

// Skip records a file or directory the scanner could not process. Skips are
// values, not errors: the walk continues and the caller aggregates them into
// the run summary.
type Skip struct {
	Path   string
	Reason error
}
