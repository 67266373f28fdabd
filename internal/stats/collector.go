// Package stats aggregates per-run counters. Workers update the collector
// concurrently; the pipeline takes one Snapshot at the end for the summary.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks run statistics using lock-free atomic counters.
type Collector struct {
	filesConsidered atomic.Int64
	filesSkipped    atomic.Int64
	filesArchived   atomic.Int64
	filesRaw        atomic.Int64
	bytesConsidered atomic.Int64
	groupsArchived  atomic.Int64
	groupsRaw       atomic.Int64
	groupsDropped   atomic.Int64
	bundlesStaged   atomic.Int64
	startTime       time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesConsidered(n int64) { c.filesConsidered.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)    { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesArchived(n int64)   { c.filesArchived.Add(n) }
func (c *Collector) AddFilesRaw(n int64)        { c.filesRaw.Add(n) }
func (c *Collector) AddBytesConsidered(n int64) { c.bytesConsidered.Add(n) }
func (c *Collector) AddGroupsArchived(n int64)  { c.groupsArchived.Add(n) }
func (c *Collector) AddGroupsRaw(n int64)       { c.groupsRaw.Add(n) }
func (c *Collector) AddGroupsDropped(n int64)   { c.groupsDropped.Add(n) }
func (c *Collector) AddBundlesStaged(n int64)   { c.bundlesStaged.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesConsidered int64
	FilesSkipped    int64
	FilesArchived   int64
	FilesRaw        int64
	BytesConsidered int64
	GroupsArchived  int64
	GroupsRaw       int64
	GroupsDropped   int64
	BundlesStaged   int64
	Elapsed         time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesConsidered: c.filesConsidered.Load(),
		FilesSkipped:    c.filesSkipped.Load(),
		FilesArchived:   c.filesArchived.Load(),
		FilesRaw:        c.filesRaw.Load(),
		BytesConsidered: c.bytesConsidered.Load(),
		GroupsArchived:  c.groupsArchived.Load(),
		GroupsRaw:       c.groupsRaw.Load(),
		GroupsDropped:   c.groupsDropped.Load(),
		BundlesStaged:   c.bundlesStaged.Load(),
		Elapsed:         time.Since(c.startTime),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"considered=%d skipped=%d archived=%d raw=%d groups_archived=%d groups_raw=%d groups_dropped=%d bytes=%s",
		s.FilesConsidered, s.FilesSkipped, s.FilesArchived, s.FilesRaw,
		s.GroupsArchived, s.GroupsRaw, s.GroupsDropped, FormatBytes(s.BytesConsidered),
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
