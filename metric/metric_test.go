package metric_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/player/metric"
)

func TestMeter(t *testing.T) {
	pint := 1
	var tests = []struct {
		component          interface{}
		routines           int
		blocks             int
		blockSize          int64
		expectedBytes      string
		expectedMessages   string
		expectedComponents string
	}{
		{
			component:          int(1),
			routines:           2,
			blocks:             10,
			blockSize:          100,
			expectedBytes:      "2000",
			expectedMessages:   "20",
			expectedComponents: "2",
		},
		{
			component:          &pint,
			routines:           2,
			blocks:             10,
			blockSize:          100,
			expectedBytes:      "4000",
			expectedMessages:   "40",
			expectedComponents: "4",
		},
		{
			component:          "aud_dec",
			routines:           1,
			blocks:             3,
			blockSize:          10,
			expectedBytes:      "30",
			expectedMessages:   "3",
			expectedComponents: "1",
		},
	}
	testFn := func(fn metric.MeasureFunc, wg *sync.WaitGroup, blocks int, blockSize int64) {
		for i := 0; i < blocks; i++ {
			fn(blockSize)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			go testFn(metric.Meter(c.component)(), wg, c.blocks, c.blockSize)
		}
		// check if no data race.
		wg.Wait()
		values := metric.Get(c.component)
		assert.Equal(t, c.expectedBytes, values[metric.ByteCounter])
		assert.Equal(t, c.expectedMessages, values[metric.MessageCounter])
		assert.Equal(t, c.expectedComponents, values[metric.ComponentCounter])
		assert.NotEmpty(t, values[metric.LatencyCounter])
	}
	assert.Contains(t, metric.GetAll(), "aud_dec")
}
