// Package model 读取 Kokoro 模型目录中的超参数文件，管理推理设备和远程模型下载。
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/iabetor/moritts/internal/ttserr"
)

// DefaultSampleRate 是 Kokoro 解码器输出的采样率。
const DefaultSampleRate = 24000

// DecoderConfig 是 config.json 中 decoder 段的超参数。
type DecoderConfig struct {
	Type                   string  `json:"type"`
	ResblockKernelSizes    []int   `json:"resblock_kernel_sizes"`
	UpsampleRates          []int   `json:"upsample_rates"`
	UpsampleInitialChannel int     `json:"upsample_initial_channel"`
	ResblockDilationSizes  [][]int `json:"resblock_dilation_sizes"`
	UpsampleKernelSizes    []int   `json:"upsample_kernel_sizes"`
	GenIstftNFFT           int     `json:"gen_istft_n_fft"`
	GenIstftHopSize        int     `json:"gen_istft_hop_size"`
}

// KokoroConfig 是 Kokoro 模型目录下 config.json 的内容。
type KokoroConfig struct {
	HiddenDim  int            `json:"hidden_dim"`
	NLayer     int            `json:"n_layer"`
	NToken     int            `json:"n_token"`
	StyleDim   int            `json:"style_dim"`
	MaxDur     int            `json:"max_dur"`
	NMels      int            `json:"n_mels"`
	Dropout    float64        `json:"dropout"`
	SampleRate int            `json:"sample_rate"`
	Decoder    DecoderConfig  `json:"decoder"`
	Vocab      map[string]int `json:"vocab"`
}

// LoadKokoroConfig 读取并校验 config.json。
func LoadKokoroConfig(path string) (*KokoroConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("[model] 模型配置不存在: %s: %w", path, ttserr.ErrNotFound)
		}
		return nil, fmt.Errorf("[model] 读取模型配置失败: %w", err)
	}

	cfg := &KokoroConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("[model] 解析模型配置 %s 失败: %w", path, err)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("[model] 模型配置 %s 无效: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查推理所需的字段。
func (c *KokoroConfig) Validate() error {
	if c.StyleDim <= 0 {
		return fmt.Errorf("style_dim 必须为正数，当前 %d: %w", c.StyleDim, ttserr.ErrInvalidArgument)
	}
	if c.NToken <= 0 {
		return fmt.Errorf("n_token 必须为正数，当前 %d: %w", c.NToken, ttserr.ErrInvalidArgument)
	}
	for sym, id := range c.Vocab {
		if id < 0 || id >= c.NToken {
			return fmt.Errorf("vocab 中 %q 的编号 %d 超出 n_token=%d: %w", sym, id, c.NToken, ttserr.ErrInvalidArgument)
		}
	}
	return nil
}
