package yalloc

// Slabsizes generate the slab progression between minblock and
// maxblock, geometric with internal fragmentation bounded by
// MEMUtilization. Sizes are multiples of Sizeinterval, the table is
// immutable once the heap is up.
func Slabsizes(minblock, maxblock int64) []int64 {
	if maxblock < minblock {
		panicerr("minblock %v > maxblock %v", minblock, maxblock)
	} else if (minblock % Sizeinterval) != 0 {
		panicerr("minblock %v is not multiple of %v", minblock, Sizeinterval)
	} else if (maxblock % Sizeinterval) != 0 {
		panicerr("maxblock %v is not multiple of %v", maxblock, Sizeinterval)
	}

	// step by 2*(1-MEMUtilization) of the previous slab, so a request
	// one byte past a slab wastes at most step/(slab+step) of the next,
	// under 1/8 at the default utilization. Rounding the step down to
	// Sizeinterval only tightens the bound.
	nextsize := func(from int64) int64 {
		addby := int64(float64(from) * 2.0 * (1.0 - MEMUtilization))
		if addby <= Sizeinterval {
			addby = Sizeinterval
		} else if (addby % Sizeinterval) != 0 {
			addby = (addby / Sizeinterval) * Sizeinterval
		}
		return from + addby
	}

	sizes := make([]int64, 0, 64)
	for size := minblock; size < maxblock; {
		sizes = append(sizes, size)
		size = nextsize(size)
	}
	sizes = append(sizes, maxblock)
	return sizes
}

// Suitableslab return the index and size of the smallest slab that can
// hold `size` bytes. Callers should have bounds-checked size against
// the largest slab.
func Suitableslab(slabs []int64, size int64) (int64, int64) {
	from := int64(0)
	for {
		switch len(slabs) {
		case 1:
			return from, slabs[0]

		case 2:
			if size <= slabs[0] {
				return from, slabs[0]
			} else if size <= slabs[1] {
				return from + 1, slabs[1]
			}
			panicerr("size %v greater than maxblock", size)

		default:
			pivot := len(slabs) / 2
			if slabs[pivot] < size {
				from, slabs = from+int64(pivot)+1, slabs[pivot+1:]
			} else {
				slabs = slabs[0 : pivot+1]
			}
		}
	}
}
