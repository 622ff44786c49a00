package audio

import (
	"encoding/binary"
	"math"
)

// Float32ToInt16 将 [-1.0, 1.0] 范围的 float32 样本转换为 PCM int16，越界样本钳位。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * math.MaxInt16)
	}
	return out
}

// Float32ToBytes 将 float32 样本转换为 signed 16-bit LE 原始 PCM 字节。
func Float32ToBytes(in []float32) []byte {
	pcm := Float32ToInt16(in)
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// IntToFloat32 将交错存放的整数 PCM 转换为 float32，只取第一声道。
func IntToFloat32(in []int, bitDepth, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	scale := float32(int64(1)<<(bitDepth-1) - 1)
	out := make([]float32, len(in)/channels)
	for i := range out {
		out[i] = float32(in[i*channels]) / scale
	}
	return out
}
