package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, standard deviation, minimum and maximum of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	min := values[0]
	max := values[0]

	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// population standard deviation
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

// ----------------------------------------------------------------------------
// FrameSizeHistogram
// ----------------------------------------------------------------------------

// frameSizeBoundaries cover the smallest possible frame up to the largest
// frame the transport accepts by default
var frameSizeBoundaries = []int{
	64, 128, 256, 512, 1024, 4096, // small requests and replies
	16384, 65535, // up to the 16-bit length limit
	262144, 1048576, 4194304, 16777216, // large writes and reads
}

// FrameSizeHistogram tracks the distribution of frame sizes in exponential
// buckets. Estimates are bucket midpoints.
type FrameSizeHistogram struct {
	mutex   sync.RWMutex
	buckets []int64 // one per boundary plus one for larger frames
	count   int64
	sum     int64
}

// NewFrameSizeHistogram creates an empty histogram
func NewFrameSizeHistogram() *FrameSizeHistogram {
	return &FrameSizeHistogram{
		buckets: make([]int64, len(frameSizeBoundaries)+1),
	}
}

// AddSample adds a frame size
//
// Thread-safe: This method is safe for concurrent use
func (h *FrameSizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := len(frameSizeBoundaries)
	for i, boundary := range frameSizeBoundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
}

// Count returns the total number of samples
func (h *FrameSizeHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the average size across all samples
func (h *FrameSizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// PercentileEstimate returns an estimate for the given percentile (0-100)
//
// Thread-safe: This method is safe for concurrent use
func (h *FrameSizeHistogram) PercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if targetCount == 0 {
		targetCount = 1
	}

	cumulativeCount := int64(0)
	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			return bucketEstimate(i)
		}
	}
	return int(h.sum / h.count)
}

// Reset clears all histogram data
func (h *FrameSizeHistogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	clear(h.buckets)
}

// bucketEstimate returns the representative size of bucket i
func bucketEstimate(i int) int {
	switch {
	case i == 0:
		return frameSizeBoundaries[0] / 2
	case i < len(frameSizeBoundaries):
		return (frameSizeBoundaries[i-1] + frameSizeBoundaries[i]) / 2
	default:
		// beyond the last boundary
		return frameSizeBoundaries[len(frameSizeBoundaries)-1] * 2
	}
}
