// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package bitvec defines a growable bit vector for
// resource bookkeeping, such as buffer suballocation
// and slot reuse.
package bitvec

import "unsafe"

// Uint represents the granularity of a bit vector.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// V is a growable bit vector with custom granularity.
// The zero value is an empty vector ready to use.
type V[T Uint] struct {
	s   []T
	rem int
}

// nbit returns the number of bits in T.
func (*V[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// locate splits a bit index into a word index and the
// bit's mask within that word.
func (v *V[T]) locate(index int) (word int, mask T) {
	n := v.nbit()
	return index / n, T(1) << (index & (n - 1))
}

// Len returns the number of bits in the vector.
func (v *V[_]) Len() int { return len(v.s) * v.nbit() }

// Rem returns the number of unset bits in the vector.
func (v *V[_]) Rem() int { return v.rem }

// Grow appends nplus words to the vector, each with all
// bits unset. A subsequent request for a range of
//
//	nplus * <number of bits in T>
//
// bits is guaranteed to succeed.
// It returns v.Len as it was before the call, which is
// the index of the first appended bit (out of bounds
// when nplus is less than 1).
func (v *V[T]) Grow(nplus int) (index int) {
	index = v.Len()
	if nplus > 0 {
		v.rem += nplus * v.nbit()
		v.s = append(v.s, make([]T, nplus)...)
	}
	return
}

// Set sets a given bit.
func (v *V[T]) Set(index int) {
	i, b := v.locate(index)
	if v.s[i]&b == 0 {
		v.s[i] |= b
		v.rem--
	}
}

// Unset unsets a given bit.
func (v *V[T]) Unset(index int) {
	i, b := v.locate(index)
	if v.s[i]&b != 0 {
		v.s[i] &^= b
		v.rem++
	}
}

// IsSet checks whether a given bit is set.
func (v *V[T]) IsSet(index int) bool {
	i, b := v.locate(index)
	return v.s[i]&b != 0
}

// Search attempts to locate an unset bit in the vector.
// If ok is true, then index is suitable for use in a
// call to v.Set.
// It fails only when v.Rem() == 0.
func (v *V[T]) Search() (index int, ok bool) {
	if v.rem == 0 {
		return
	}
	for i, x := range v.s {
		if x == ^T(0) {
			continue
		}
		b := 0
		for x&(1<<b) != 0 {
			b++
		}
		return i*v.nbit() + b, true
	}
	return
}

// SearchRange attempts to locate a contiguous range of
// unset bits. If ok is true, then every index in the
// range [index, index+n) is suitable for use in a call
// to v.Set.
// It calls Search when n <= 1.
func (v *V[T]) SearchRange(n int) (index int, ok bool) {
	if n <= 1 {
		return v.Search()
	}
	if v.rem < n {
		return
	}
	nb := v.nbit()
	var run, start int
	for i, x := range v.s {
		switch x {
		case 0:
			if run == 0 {
				start = i * nb
			}
			run += nb
			if run >= n {
				return start, true
			}
			continue
		case ^T(0):
			run = 0
			continue
		}
		for b := range nb {
			if x&(1<<b) != 0 {
				run = 0
				continue
			}
			if run == 0 {
				start = i*nb + b
			}
			run++
			if run >= n {
				return start, true
			}
		}
	}
	return
}

// Clear unsets every bit in the vector.
// The vector's length is unchanged.
func (v *V[T]) Clear() {
	n := v.Len()
	if n == v.rem {
		return
	}
	clear(v.s)
	v.rem = n
}
