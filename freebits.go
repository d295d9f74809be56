package yalloc

import "unsafe"

import "github.com/bnclabs/yalloc/lib"

// freebits tracks free cells of a region in a two level bitmap. A set
// bit in the leaf bitmap marks a free cell, a set bit in the summary
// bitmap marks a leaf byte with at least one set bit. Alloc always
// returns the lowest free cell index. Bitmaps start all-clear, cells
// enter the bitmap on their first free.
type freebits struct {
	nbits   int64
	nfree   int64
	freeoff int64 // lowest summary byte that can hold a set bit
	summary []uint8
	leaf    []uint8
}

func newfreebits(nbits int64) *freebits {
	if nbits <= 0 {
		panicerr("freebits with %v bits", nbits)
	}
	nleaf := lib.Ceil(nbits, 8)
	fbits := &freebits{
		nbits:   nbits,
		summary: make([]uint8, lib.Ceil(nleaf, 8)),
		leaf:    make([]uint8, nleaf),
	}
	return fbits
}

func (fbits *freebits) alloc() (int64, bool) {
	for i := fbits.freeoff; i < int64(len(fbits.summary)); i++ {
		sbyt := fbits.summary[i]
		if sbyt == 0 {
			fbits.freeoff = i + 1
			continue
		}
		sbit := lib.Bit8(sbyt).Findfirstset()
		lq := (i << 3) + int64(sbit)
		lbyt := fbits.leaf[lq]
		lbit := lib.Bit8(lbyt).Findfirstset()
		if lbit < 0 {
			panicerr("summary bit set over empty leaf byte %v", lq)
		}
		fbits.leaf[lq] = lib.Bit8(lbyt).Clearbit(uint8(lbit))
		if fbits.leaf[lq] == 0 {
			fbits.summary[i] = lib.Bit8(sbyt).Clearbit(uint8(sbit))
		}
		fbits.freeoff = i
		fbits.nfree--
		return (lq << 3) + int64(lbit), true
	}
	return -1, false
}

func (fbits *freebits) free(nthblock int64) {
	if nthblock < 0 || nthblock >= fbits.nbits {
		panicerr("freebits.free(): block %v outside %v", nthblock, fbits.nbits)
	}
	lq, lr := (nthblock >> 3), uint8(nthblock&0x7)
	lbyt := lib.Bit8(fbits.leaf[lq])
	if (uint8(lbyt) & (1 << lr)) != 0 {
		panicerr("freebits.free(): block %v already free", nthblock)
	}
	fbits.leaf[lq] = lbyt.Setbit(lr)
	sq, sr := (lq >> 3), uint8(lq&0x7)
	fbits.summary[sq] = lib.Bit8(fbits.summary[sq]).Setbit(sr)
	if sq < fbits.freeoff {
		fbits.freeoff = sq
	}
	fbits.nfree++
}

func (fbits *freebits) freeblocks() int64 {
	return fbits.nfree
}

func (fbits *freebits) sizeof() int64 {
	sz := int64(unsafe.Sizeof(*fbits))
	return sz + int64(len(fbits.summary)) + int64(len(fbits.leaf))
}
