package classify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwilfong/globus-transfer/internal/classify"
	"github.com/rwilfong/globus-transfer/internal/scan"
)

func group(dir string, sizes ...int64) scan.DirectoryGroup {
	g := scan.DirectoryGroup{Dir: dir}
	for i, size := range sizes {
		g.Records = append(g.Records, scan.FileRecord{
			Path:    "/src/" + dir + "/f" + string(rune('a'+i)),
			RelPath: dir + "/f" + string(rune('a'+i)),
			Size:    size,
			ModTime: time.Now(),
		})
	}
	return g
}

func TestDecide_SmallMeanArchives(t *testing.T) {
	t.Parallel()

	d, err := classify.Decide(group("logs", 100, 200, 300), 1024)
	require.NoError(t, err)
	assert.Equal(t, classify.Archive, d.Strategy)
	assert.Equal(t, "logs", d.Group.Dir)
}

func TestDecide_LargeMeanStaysRaw(t *testing.T) {
	t.Parallel()

	d, err := classify.Decide(group("scans", 4096, 8192), 1024)
	require.NoError(t, err)
	assert.Equal(t, classify.Raw, d.Strategy)
}

func TestDecide_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	const threshold = int64(1000)

	// Mean exactly equal to the threshold: RAW (strict lower bound).
	d, err := classify.Decide(group("exact", 1000, 1000), threshold)
	require.NoError(t, err)
	assert.Equal(t, classify.Raw, d.Strategy)

	// One byte below across the group: ARCHIVE.
	d, err = classify.Decide(group("below", 1000, 999), threshold)
	require.NoError(t, err)
	assert.Equal(t, classify.Archive, d.Strategy)
}

func TestDecide_OutlierForcesRawForWholeGroup(t *testing.T) {
	t.Parallel()

	// Nine tiny files plus one huge one: the mean crosses the threshold and
	// the entire directory goes RAW. Per-group granularity is deliberate.
	sizes := []int64{10, 10, 10, 10, 10, 10, 10, 10, 10, 1 << 30}
	d, err := classify.Decide(group("mixed", sizes...), classify.DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, classify.Raw, d.Strategy)
}

func TestDecide_EmptyGroupIsInternalFault(t *testing.T) {
	t.Parallel()

	_, err := classify.Decide(scan.DirectoryGroup{Dir: "empty"}, 1024)
	var emptyErr *classify.EmptyGroupError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, "empty", emptyErr.Dir)
}

func TestMeanSize(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 200.0, classify.MeanSize(group("d", 100, 300)), 0.001)
	assert.Zero(t, classify.MeanSize(scan.DirectoryGroup{}))
}

func TestStrategyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ARCHIVE", classify.Archive.String())
	assert.Equal(t, "RAW", classify.Raw.String())
}
