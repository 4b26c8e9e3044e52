package utils

import (
	"encoding/binary"
	"github.com/twmb/murmur3"
	"math"
	"strconv"
)

func HashString(s string) uint64 {
	return HashBytes([]byte(s))
}

func HashBytes(bytes ...[]byte) uint64 {
	hash := murmur3.New64()
	for _, b := range bytes {
		_, err := hash.Write(b)
		if err != nil {
			panic(err)
		}
	}
	return hash.Sum64()
}

// HashFloats hashes the IEEE-754 bit patterns of values, so 0 and -0 differ.
func HashFloats(values []float64) uint64 {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return HashBytes(buf)
}

func FormatHash(h uint64) string {
	return strconv.FormatUint(h, 16)
}
