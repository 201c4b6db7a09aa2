package codec

import "math"

// Quantized is the set of integer types floats are scaled into.
type Quantized interface {
	int16 | int32 | int64
}

// Floating is the set of float element types.
type Floating interface {
	float32 | float64
}

func limits[S Quantized]() (lo, hi int64) {
	var s S
	switch any(s).(type) {
	case int16:
		return math.MinInt16, math.MaxInt16
	case int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// Quantize stores round((v - offset) * scale) for every v, or
// round(log10(1 + v - offset) * scale) when logarithmic is set. NaN maps to
// the largest value of S; finite values are clamped below it so nothing else
// collides with the NaN sentinel.
func Quantize[S Quantized, F Floating](dst []S, src []F, scale, offset float32, logarithmic bool) {
	lo, hi := limits[S]()
	flo, fhi := float64(lo), float64(hi)
	for i, v := range src {
		x := float64(v)
		if math.IsNaN(x) {
			dst[i] = S(hi)
			continue
		}
		x -= float64(offset)
		if logarithmic {
			x = math.Log10(1 + x)
		}
		x = math.Round(x * float64(scale))
		switch {
		case math.IsNaN(x):
			dst[i] = S(hi)
		case x <= flo:
			dst[i] = S(lo)
		case x >= fhi-1:
			dst[i] = S(hi - 1)
		default:
			dst[i] = S(int64(x))
		}
	}
}

// Dequantize reverses Quantize: raw/scale + offset, or
// 10^(raw/scale) - 1 + offset when logarithmic is set.
func Dequantize[S Quantized, F Floating](dst []F, src []S, scale, offset float32, logarithmic bool) {
	_, hi := limits[S]()
	for i, v := range src {
		if int64(v) == hi {
			dst[i] = F(math.NaN())
			continue
		}
		x := float64(v) / float64(scale)
		if logarithmic {
			x = math.Pow(10, x) - 1
		}
		dst[i] = F(x + float64(offset))
	}
}
