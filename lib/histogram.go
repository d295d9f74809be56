package lib

import "fmt"
import "math"
import "sort"
import "strings"

// HistogramInt64 statistical histogram. Not thread safe, callers that
// sample from concurrent routines should keep one histogram per routine
// and merge them while reporting.
type HistogramInt64 struct {
	// stats
	n         int64
	minval    int64
	maxval    int64
	sum       int64
	sumsq     float64
	histogram []int64
	// setup
	init  bool
	from  int64
	till  int64
	width int64
}

// NewhistorgramInt64 return a new histogram object, counting samples
// between `from` and `till` in buckets of `width`.
func NewhistorgramInt64(from, till, width int64) *HistogramInt64 {
	from = (from / width) * width
	till = (till / width) * width
	h := &HistogramInt64{from: from, till: till, width: width}
	h.histogram = make([]int64, 1+((till-from)/width)+1)
	return h
}

// Add a sample to this histogram.
func (h *HistogramInt64) Add(sample int64) {
	h.n++
	h.sum += sample
	f := float64(sample)
	h.sumsq += f * f
	if h.init == false || sample < h.minval {
		h.minval = sample
		h.init = true
	}
	if h.maxval < sample {
		h.maxval = sample
	}

	if sample < h.from {
		h.histogram[0]++
	} else if sample >= h.till {
		h.histogram[len(h.histogram)-1]++
	} else {
		h.histogram[((sample-h.from)/h.width)+1]++
	}
}

// Merge samples from another histogram with identical setup.
func (h *HistogramInt64) Merge(other *HistogramInt64) {
	if h.from != other.from || h.till != other.till || h.width != other.width {
		panic("histogram setup mismatch")
	}
	if other.n == 0 {
		return
	}
	h.n += other.n
	h.sum += other.sum
	h.sumsq += other.sumsq
	if h.init == false || other.minval < h.minval {
		h.minval = other.minval
		h.init = true
	}
	if h.maxval < other.maxval {
		h.maxval = other.maxval
	}
	for i, count := range other.histogram {
		h.histogram[i] += count
	}
}

// Min return minimum value from sample.
func (h *HistogramInt64) Min() int64 {
	return h.minval
}

// Max return maximum value from sample.
func (h *HistogramInt64) Max() int64 {
	return h.maxval
}

// Samples return total number of samples in the set.
func (h *HistogramInt64) Samples() int64 {
	return h.n
}

// Sum return the sum of all sample values.
func (h *HistogramInt64) Sum() int64 {
	return h.sum
}

// Mean return the average value of all samples.
func (h *HistogramInt64) Mean() int64 {
	if h.n == 0 {
		return 0
	}
	return int64(float64(h.sum) / float64(h.n))
}

// Variance return the squared deviation of a random sample from
// its mean.
func (h *HistogramInt64) Variance() int64 {
	if h.n == 0 {
		return 0
	}
	nF, meanF := float64(h.n), float64(h.Mean())
	return int64((h.sumsq / nF) - (meanF * meanF))
}

// SD return by how much the samples differ from the mean value of
// sample set.
func (h *HistogramInt64) SD() int64 {
	if h.n == 0 {
		return 0
	}
	return int64(math.Sqrt(float64(h.Variance())))
}

// Clone copies the entire instance.
func (h *HistogramInt64) Clone() *HistogramInt64 {
	newh := *h
	newh.histogram = make([]int64, len(h.histogram))
	copy(newh.histogram, h.histogram)
	return &newh
}

// Stats return a map of non-empty buckets to their sample count.
func (h *HistogramInt64) Stats() map[int64]int64 {
	m := make(map[int64]int64)
	for i, count := range h.histogram {
		if count == 0 {
			continue
		}
		m[h.from+(int64(i-1)*h.width)] = count
	}
	return m
}

func (h *HistogramInt64) String() string {
	stats := h.Stats()
	keys := make([]int64, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	ss := make([]string, 0, len(keys))
	for _, k := range keys {
		ss = append(ss, fmt.Sprintf("%v:%v", k, stats[k]))
	}
	return strings.Join(ss, ", ")
}
