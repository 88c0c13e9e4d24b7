package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

func TestCounters_RecordsPerVendor(t *testing.T) {
	c := NewCounters()
	c.Enqueued(domain.VendorHDI)
	c.Enqueued(domain.VendorHDI)
	c.Completed(domain.VendorHDI)
	c.Failed(domain.VendorAXA)
	c.Requeued(domain.VendorAXA)
	c.DLQd(domain.VendorAXA)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap[domain.VendorHDI].Enqueued)
	assert.Equal(t, int64(1), snap[domain.VendorHDI].Completed)
	assert.Equal(t, int64(1), snap[domain.VendorAXA].Failed)
	assert.Equal(t, int64(1), snap[domain.VendorAXA].Requeued)
	assert.Equal(t, int64(1), snap[domain.VendorAXA].DLQd)
}

func TestCounters_ConcurrentWritesAreSafe(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Enqueued(domain.VendorSURA)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), c.Snapshot()[domain.VendorSURA].Enqueued)
}
