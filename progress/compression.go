package progress

import (
	"math"
	"sync"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// CompressionTracker reports per-image progress of the media phase.
type CompressionTracker struct {
	mu       sync.Mutex
	state    models.CompressionProgress
	onChange func(models.CompressionProgress)
}

// NewCompressionTracker starts a tracker over total images.
func NewCompressionTracker(total int, onChange func(models.CompressionProgress)) *CompressionTracker {
	return &CompressionTracker{state: models.CompressionProgress{Total: total}, onChange: onChange}
}

// Advance records that the image fileName finished processing.
func (c *CompressionTracker) Advance(fileName string) {
	c.mu.Lock()
	if c.state.Current < c.state.Total {
		c.state.Current++
	}
	c.state.FileName = fileName
	c.state.Percentage = percentage(c.state.Current, c.state.Total)
	snap := c.state
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}

// Snapshot returns a copy of the current state.
func (c *CompressionTracker) Snapshot() models.CompressionProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func percentage(current, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(current)/float64(total)*1000) / 10
}
