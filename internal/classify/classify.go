// Package classify decides the transport strategy for a directory group:
// bundle its files into one archive, or transfer them individually. The
// decision is per-group by mean file size, matching the downstream storage
// system's batching guidance. A single large outlier can pull an otherwise
// small directory above the threshold and force RAW for the whole group;
// that coarse granularity is intentional policy, not an accident.
package classify

import "github.com/rwilfong/globus-transfer/internal/scan"

// Strategy is the per-group transport decision.
type Strategy int

const (
	Archive Strategy = iota // bundle the group into a single tar
	Raw                     // transfer each file individually
)

var strategyNames = [...]string{
	Archive: "ARCHIVE",
	Raw:     "RAW",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "Unknown"
}

// DefaultThreshold is the mean-size cutoff below which a group is archived,
// 50 MiB per HPSS small-file guidance.
const DefaultThreshold = 50 * 1024 * 1024

// Decision pairs a group with its chosen strategy. The strategy never
// changes once decided.
type Decision struct {
	Group    scan.DirectoryGroup
	Strategy Strategy
}

// Decide classifies a group against threshold: mean size strictly below the
// threshold means ARCHIVE, at or above means RAW. The comparison is kept in
// integer arithmetic (mean < T iff total < T*count) so the boundary is
// exact. Groups are never empty by construction; an EmptyGroupError
// indicates an internal consistency fault upstream.
func Decide(g scan.DirectoryGroup, threshold int64) (Decision, error) {
	if g.Len() == 0 {
		return Decision{}, &EmptyGroupError{Dir: g.Dir}
	}
	s := Raw
	if g.TotalBytes() < threshold*int64(g.Len()) {
		s = Archive
	}
	return Decision{Group: g, Strategy: s}, nil
}

// MeanSize returns the group's mean file size in bytes, for logging.
func MeanSize(g scan.DirectoryGroup) float64 {
	if g.Len() == 0 {
		return 0
	}
	return float64(g.TotalBytes()) / float64(g.Len())
}

// EmptyGroupError reports a group that reached classification with no
// records. The scanner never emits such groups.
type EmptyGroupError struct {
	Dir string
}

func (e *EmptyGroupError) Error() string {
	return "classify: empty group " + e.Dir
}
