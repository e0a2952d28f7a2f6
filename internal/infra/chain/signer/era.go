package signer

import "math/bits"

// MortalEra encodes a bounded validity window anchored at the current block,
// so a signed transaction that never gets submitted cannot stay valid
// forever. period is rounded to a power of two and clamped to what the
// runtime accepts.
func MortalEra(period, current uint64) [2]byte {
	calPeriod := nextPowerOfTwo(period)
	if calPeriod < 4 {
		calPeriod = 4
	}
	if calPeriod > 1<<16 {
		calPeriod = 1 << 16
	}

	phase := current % calPeriod
	quantizeFactor := calPeriod >> 12
	if quantizeFactor < 1 {
		quantizeFactor = 1
	}
	quantizedPhase := phase / quantizeFactor * quantizeFactor

	low := uint16(bits.TrailingZeros64(calPeriod) - 1)
	if low < 1 {
		low = 1
	}
	if low > 15 {
		low = 15
	}

	encoded := low | uint16(quantizedPhase/quantizeFactor)<<4
	return [2]byte{byte(encoded), byte(encoded >> 8)}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	if v&(v-1) == 0 {
		return v
	}
	return 1 << bits.Len64(v)
}
