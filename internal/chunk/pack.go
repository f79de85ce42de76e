package chunk

import "math/bits"

// BitsFor возвращает ширину индекса палитры из n записей (не меньше 4 бит)
func BitsFor(n int) int {
	if n <= 1 {
		return 4
	}
	return max(4, bits.Len(uint(n-1)))
}

// PackedLen возвращает число long-значений для count индексов шириной width
func PackedLen(count, width int, spanning bool) int {
	if spanning {
		return (count*width + 63) / 64
	}
	perLong := 64 / width
	return (count + perLong - 1) / perLong
}

// Unpack распаковывает count индексов шириной width.
// spanning: индекс может переходить через границу long (до DataVersion 2529).
func Unpack(data []int64, count, width int, spanning bool) []uint16 {
	out := make([]uint16, count)
	mask := uint64(1)<<width - 1

	if spanning {
		for i := range out {
			bit := i * width
			word, off := bit/64, bit%64
			v := uint64(data[word]) >> off
			if off+width > 64 {
				v |= uint64(data[word+1]) << (64 - off)
			}
			out[i] = uint16(v & mask)
		}
		return out
	}

	perLong := 64 / width
	for i := range out {
		word, off := i/perLong, (i%perLong)*width
		out[i] = uint16((uint64(data[word]) >> off) & mask)
	}
	return out
}

// Pack обратная к Unpack операция
func Pack(indices []uint16, width int, spanning bool) []int64 {
	out := make([]uint64, PackedLen(len(indices), width, spanning))
	mask := uint64(1)<<width - 1

	for i, idx := range indices {
		v := uint64(idx) & mask
		if spanning {
			bit := i * width
			word, off := bit/64, bit%64
			out[word] |= v << off
			if off+width > 64 {
				out[word+1] |= v >> (64 - off)
			}
			continue
		}
		perLong := 64 / width
		out[i/perLong] |= v << ((i % perLong) * width)
	}

	result := make([]int64, len(out))
	for i, v := range out {
		result[i] = int64(v)
	}
	return result
}
