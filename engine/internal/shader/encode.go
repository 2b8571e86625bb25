// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Packed formats that shaders decode on load.

package shader

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Shared-exponent packing parameters.
// Nine mantissa bits per channel and a five bit
// exponent biased by 15.
const (
	expBias = 15
	manBits = 9

	// SharedExpMax is the largest channel value that
	// the shared-exponent encoding represents.
	SharedExpMax = 65408
)

// PackE5B9G9R9 packs an RGB color into a 32-bit
// shared-exponent value.
// Negative and NaN channels are treated as zero and
// values greater than 65408 are clamped to it.
func PackE5B9G9R9(r, g, b float32) uint32 {
	rc := clampShared(r)
	gc := clampShared(g)
	bc := clampShared(b)
	maxc := max(rc, gc, bc)
	if maxc == 0 {
		return 0
	}
	_, e := math.Frexp(maxc)
	es := max(e-1, -expBias-1) + 1 + expBias
	scale := math.Ldexp(1, manBits+expBias-es)
	// The largest channel may round up to ten bits,
	// in which case the exponent must grow.
	if math.Floor(maxc*scale+0.5) == 1<<manBits {
		es++
		scale /= 2
	}
	rm := uint32(rc*scale + 0.5)
	gm := uint32(gc*scale + 0.5)
	bm := uint32(bc*scale + 0.5)
	return rm | gm<<manBits | bm<<(manBits*2) | uint32(es)<<27
}

// UnpackE5B9G9R9 is the inverse of PackE5B9G9R9.
func UnpackE5B9G9R9(p uint32) (r, g, b float32) {
	scale := math.Ldexp(1, int(p>>27)-expBias-manBits)
	r = float32(float64(p&0x1ff) * scale)
	g = float32(float64(p>>manBits&0x1ff) * scale)
	b = float32(float64(p>>(manBits*2)&0x1ff) * scale)
	return
}

func clampShared(x float32) float64 {
	if !(x > 0) {
		// Zero, negative or NaN.
		return 0
	}
	return float64(min(x, SharedExpMax))
}

// PackHalf2x16 packs two values into a pair of 16-bit
// floats.
func PackHalf2x16(x, y float32) uint32 {
	return uint32(halfBits(x)) | uint32(halfBits(y))<<16
}

// UnpackHalf2x16 is the inverse of PackHalf2x16.
func UnpackHalf2x16(p uint32) (x, y float32) {
	return halfFloat(uint16(p)), halfFloat(uint16(p >> 16))
}

// halfBits converts x to IEEE 754 binary16, rounding to
// nearest even.
func halfBits(x float32) uint16 {
	b := math.Float32bits(x)
	s := uint16(b >> 16 & 0x8000)
	b &= 0x7fffffff
	switch {
	case b > 0x7f800000:
		// NaN.
		return s | 0x7e00
	case b >= 0x47800000:
		// Inf, or too large to represent.
		return s | 0x7c00
	case b < 0x33000000:
		// Rounds to zero.
		return s
	case b < 0x38800000:
		// Subnormal.
		m := b&0x7fffff | 0x800000
		shift := 126 - int(b>>23)
		h := m >> shift
		rem := m & (1<<shift - 1)
		if half := uint32(1) << (shift - 1); rem > half || rem == half && h&1 == 1 {
			h++
		}
		return s | uint16(h)
	}
	// Normal. Rebias the exponent and round the
	// mantissa down to ten bits.
	b -= 0x38000000
	b += 0xfff + b>>13&1
	return s | uint16(b>>13)
}

// halfFloat converts a binary16 value back to float32.
func halfFloat(h uint16) float32 {
	s := uint32(h&0x8000) << 16
	e := uint32(h >> 10 & 0x1f)
	m := uint32(h & 0x3ff)
	switch e {
	case 0:
		if m == 0 {
			return math.Float32frombits(s)
		}
		// Subnormal.
		e = 113
		for m&0x400 == 0 {
			m <<= 1
			e--
		}
		m &= 0x3ff
	case 31:
		return math.Float32frombits(s | 0x7f800000 | m<<13)
	default:
		e += 112
	}
	return math.Float32frombits(s | e<<23 | m<<13)
}

// PackNormal encodes a direction as two 16-bit snorm
// values using an octahedral mapping.
// n need not be unit length. The zero vector encodes
// as if it were +Z.
func PackNormal(n mgl32.Vec3) uint32 {
	d := mgl32.Abs(n[0]) + mgl32.Abs(n[1]) + mgl32.Abs(n[2])
	if d == 0 {
		return 0
	}
	x := n[0] / d
	y := n[1] / d
	if n[2] < 0 {
		x, y = (1-mgl32.Abs(y))*signNZ(x), (1-mgl32.Abs(x))*signNZ(y)
	}
	return uint32(snorm16(x)) | uint32(snorm16(y))<<16
}

// UnpackNormal is the inverse of PackNormal.
// The result is unit length.
func UnpackNormal(p uint32) mgl32.Vec3 {
	x := unsnorm16(uint16(p))
	y := unsnorm16(uint16(p >> 16))
	z := 1 - mgl32.Abs(x) - mgl32.Abs(y)
	if z < 0 {
		x, y = (1-mgl32.Abs(y))*signNZ(x), (1-mgl32.Abs(x))*signNZ(y)
	}
	return mgl32.Vec3{x, y, z}.Normalize()
}

// signNZ is the sign of x, counting zero as positive.
func signNZ(x float32) float32 {
	if x < 0 {
		return -1
	}
	return 1
}

func snorm16(x float32) uint16 {
	x = mgl32.Clamp(x, -1, 1)
	return uint16(int16(math.Round(float64(x) * 32767)))
}

func unsnorm16(u uint16) float32 {
	return mgl32.Clamp(float32(int16(u))/32767, -1, 1)
}

// PackColor packs an RGBA color into a 32-bit unorm
// value, red in the least significant byte.
func PackColor(r, g, b, a float32) uint32 {
	return unorm8(r) | unorm8(g)<<8 | unorm8(b)<<16 | unorm8(a)<<24
}

func unorm8(x float32) uint32 {
	return uint32(mgl32.Clamp(x, 0, 1)*255 + 0.5)
}
