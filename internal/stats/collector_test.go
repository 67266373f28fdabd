package stats_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rwilfong/globus-transfer/internal/stats"
)

func TestCollector_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	c := stats.NewCollector()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.AddFilesConsidered(1)
				c.AddBytesConsidered(10)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(800), snap.FilesConsidered)
	assert.Equal(t, int64(8000), snap.BytesConsidered)
}

func TestSnapshot_String(t *testing.T) {
	t.Parallel()

	c := stats.NewCollector()
	c.AddFilesConsidered(3)
	c.AddFilesSkipped(1)
	c.AddGroupsDropped(1)

	s := c.Snapshot().String()
	assert.Contains(t, s, "considered=3")
	assert.Contains(t, s, "skipped=1")
	assert.Contains(t, s, "groups_dropped=1")
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", stats.FormatBytes(512))
	assert.Equal(t, "1.0 KiB", stats.FormatBytes(1024))
	assert.Equal(t, "50.0 MiB", stats.FormatBytes(50*1024*1024))
	assert.Equal(t, "1.5 GiB", stats.FormatBytes(3*512*1024*1024))
}
