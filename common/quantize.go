package common

import (
	"math"

	"github.com/x448/float16"
)

// QuantizeHalf converts a float32 to IEEE 754 binary16 bits, rounding to nearest even.
func QuantizeHalf(v float32) uint16 {
	return float16.Fromfloat32(v).Bits()
}

// DequantizeHalf converts IEEE 754 binary16 bits back to float32.
func DequantizeHalf(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// QuantizeUnorm8 maps v in [0, 1] to [0, 255] with rounding. Values outside the range are clamped.
func QuantizeUnorm8(v float32) uint8 {
	v = Clamp(v, 0, 1)
	return uint8(v*255 + 0.5)
}

// QuantizeSnorm8 maps v in [-1, 1] to [-127, 127] with rounding. Values outside the range are clamped.
func QuantizeSnorm8(v float32) int8 {
	v = Clamp(v, -1, 1)
	return int8(math.Round(float64(v * 127)))
}

// QuantizeNormal packs a unit normal into unsigned bytes using n*127.5+127.5 per component.
func QuantizeNormal(n [3]float32) [3]uint8 {
	return [3]uint8{
		QuantizeUnorm8(n[0]*0.5 + 0.5),
		QuantizeUnorm8(n[1]*0.5 + 0.5),
		QuantizeUnorm8(n[2]*0.5 + 0.5),
	}
}
