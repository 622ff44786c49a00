package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth = 16
	// wavFormatPCM 是 WAV 头中的整数 PCM 格式编号。
	wavFormatPCM = 1
)

// WriteWAV 将单声道 float32 样本写为 16-bit PCM WAV 文件。
// 超出 [-1.0, 1.0] 的样本会被钳位。
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("[audio] 非法采样率: %d", sampleRate)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("[audio] 创建输出目录失败: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[audio] 创建 WAV 文件失败: %w", err)
	}

	if err := encodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("[audio] 关闭 WAV 文件失败: %w", err)
	}
	return nil
}

func encodeWAV(f *os.File, samples []float32, sampleRate int) error {
	pcm := Float32ToInt16(samples)
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("[audio] 写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("[audio] 写入 WAV 头失败: %w", err)
	}
	return nil
}

// ReadWAV 读取 WAV 文件，返回第一声道的 float32 样本和采样率。
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 打开 WAV 文件失败: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("[audio] %s 不是有效的 WAV 文件", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = wavBitDepth
	}
	samples := IntToFloat32(buf.Data, bitDepth, int(dec.NumChans))
	return samples, int(dec.SampleRate), nil
}
