package yalloc

import s "github.com/bnclabs/gosettings"

import "github.com/bnclabs/yalloc/osmem"

// Alignment every pointer returned by the allocator is aligned to at
// least Alignment bytes.
const Alignment = int64(16)

// Sizeinterval slab sizes are multiples of Sizeinterval.
const Sizeinterval = int64(32)

// MEMUtilization expected ratio between requested bytes and the slab
// bytes serving the request. Bounds internal fragmentation of the slab
// progression.
const MEMUtilization = float64(0.95)

// Maxheapsize maximum capacity of a heap. Can be used as default for
// settings-parameter `capacity`.
const Maxheapsize = int64(1024 * 1024 * 1024 * 1024) // 1TB

// Maxslabs maximum number of slab sizes allowed in a heap.
const Maxslabs = int64(512)

// Maxcells maximum number of cells allowed in a region.
const Maxcells = int64(65536)

// Defaultsettings for a heap instance.
//
// "capacity" (int64, default: Maxheapsize)
//		Maximum number of bytes the heap will obtain from the OS.
//
// "minblock" (int64, default: 32)
//		Smallest slab size, also the size serving zero-byte requests.
//
// "small.threshold" (int64, default: 256)
//		Upper bound, in bytes, for the small slabs. Small slabs get the
//		full magazine depth, medium slabs get a shallower one.
//
// "region.pages" (int64, default: 256)
//		Number of OS pages in a small/medium region.
//
// "large.threshold" (int64, default: 128*1024)
//		Requests at or above this many bytes bypass the slabs and get a
//		dedicated OS mapping. Cannot exceed a quarter of the region
//		size.
//
// "cache.depth" (int64, default: 64)
//		High watermark of a cache magazine, per small slab.
//
// "cache.batch" (int64, default: 16)
//		Number of cells claimed from a region on magazine refill, and
//		returned on magazine overflow.
//
// "retain.regions" (bool, default: false)
//		When true, fully emptied regions are parked in a per-slab pool
//		for reuse instead of being unmapped.
//
// "allocator" (string, default: "flist")
//		Free-cell bookkeeping per region, can be "flist" or "fbit".
func Defaultsettings() s.Settings {
	return s.Settings{
		"capacity":        Maxheapsize,
		"minblock":        int64(32),
		"small.threshold": int64(256),
		"region.pages":    int64(256),
		"large.threshold": int64(128 * 1024),
		"cache.depth":     int64(64),
		"cache.batch":     int64(16),
		"retain.regions":  false,
		"allocator":       "flist",
	}
}

func validatesettings(setts s.Settings) {
	capacity := setts.Int64("capacity")
	minblock := setts.Int64("minblock")
	smallthreshold := setts.Int64("small.threshold")
	regionpages := setts.Int64("region.pages")
	largethreshold := setts.Int64("large.threshold")
	cachedepth := setts.Int64("cache.depth")
	cachebatch := setts.Int64("cache.batch")

	regionsize := regionpages * osmem.Pagesize()
	if capacity <= 0 || capacity > Maxheapsize {
		panicerr("capacity %v beyond limit %v", capacity, Maxheapsize)
	} else if (minblock % Sizeinterval) != 0 {
		panicerr("minblock %v not multiple of %v", minblock, Sizeinterval)
	} else if minblock <= 0 {
		panicerr("invalid minblock %v", minblock)
	} else if smallthreshold < minblock {
		panicerr("small.threshold %v below minblock %v", smallthreshold, minblock)
	} else if largethreshold <= smallthreshold {
		panicerr("large.threshold %v below small.threshold %v",
			largethreshold, smallthreshold)
	} else if (largethreshold % Sizeinterval) != 0 {
		panicerr("large.threshold %v not multiple of %v",
			largethreshold, Sizeinterval)
	} else if largethreshold > (regionsize / 4) {
		panicerr("large.threshold %v exceeds quarter region %v",
			largethreshold, regionsize/4)
	} else if cachedepth <= 0 || cachebatch <= 0 || cachebatch > cachedepth {
		panicerr("invalid cache.depth %v cache.batch %v", cachedepth, cachebatch)
	}
	switch setts.String("allocator") {
	case "flist", "fbit":
	default:
		panicerr("invalid allocator %q", setts.String("allocator"))
	}
}
