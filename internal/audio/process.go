package audio

import (
	"fmt"
	"math"

	"github.com/iabetor/moritts/internal/ttserr"
)

// maxOutputSamples 是 AdjustSpeed 输出长度上限，约 24 kHz 下 24 小时。
const maxOutputSamples = math.MaxInt32

// DefaultPeak 是归一化后的目标峰值，保留 10% 余量防止削波。
const DefaultPeak = 0.9

// Peak 返回样本绝对值的最大值。
func Peak(samples []float32) float32 {
	var m float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > m {
			m = s
		}
	}
	return m
}

// Normalize 将音频峰值缩放到 DefaultPeak。全静音输入原样返回。
func Normalize(samples []float32) []float32 {
	return NormalizeTo(samples, DefaultPeak)
}

// NormalizeTo 将音频峰值缩放到 peak。
// 返回新切片，不修改输入；峰值为 0 时直接返回输入。
func NormalizeTo(samples []float32, peak float32) []float32 {
	m := Peak(samples)
	if m == 0 {
		return samples
	}
	scale := float64(peak) / float64(m)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) * scale)
	}
	return out
}

// AdjustSpeed 通过线性插值重采样改变语速。
// factor > 1 加快，< 1 放慢；输出长度为 floor(len/factor)。
// 这是朴素重采样，音高会随语速变化。
func AdjustSpeed(samples []float32, factor float64) ([]float32, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("[audio] 语速必须大于 0，当前 %v: %w", factor, ttserr.ErrInvalidArgument)
	}
	if factor == 1.0 {
		return samples, nil
	}

	nf := math.Floor(float64(len(samples)) / factor)
	if nf > maxOutputSamples {
		return nil, fmt.Errorf("[audio] 语速 %v 过慢，输出将超过 %d 个样本: %w",
			factor, maxOutputSamples, ttserr.ErrInvalidArgument)
	}
	n := int(nf)
	out := make([]float32, n)
	if n == 0 || len(samples) == 0 {
		return out, nil
	}
	if n == 1 {
		out[0] = samples[0]
		return out, nil
	}

	// 在 [0, len-1] 上均匀取 n 个位置
	last := float64(len(samples) - 1)
	step := last / float64(n-1)
	for i := range out {
		pos := float64(i) * step
		lo := int(math.Floor(pos))
		if lo >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(lo)
		a, b := float64(samples[lo]), float64(samples[lo+1])
		out[i] = float32(a + (b-a)*frac)
	}
	return out, nil
}
