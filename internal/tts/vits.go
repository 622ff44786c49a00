package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/text"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

// vitsBackend 是 sherpa-onnx OfflineTts 的最小接口。
type vitsBackend interface {
	Generate(text string, sid int, speed float32) ([]float32, int)
	Close()
}

type sherpaBackend struct {
	tts *sherpa.OfflineTts
}

func (b *sherpaBackend) Generate(text string, sid int, speed float32) ([]float32, int) {
	audio := b.tts.Generate(text, sid, speed)
	if audio == nil {
		return nil, 0
	}
	return audio.Samples, audio.SampleRate
}

func (b *sherpaBackend) Close() {
	sherpa.DeleteOfflineTts(b.tts)
}

// VITSOptions 是加载 VITS 模型的参数，路径必须已在本地。
type VITSOptions struct {
	Model      string
	Tokens     string
	Lexicon    string
	DataDir    string
	SpeakerID  int
	NumThreads int
	Device     model.Device
}

// VITS 使用 sherpa-onnx 运行单说话人 VITS 模型（波斯语男声/女声）。
type VITS struct {
	backend vitsBackend
	sid     int
	mu      sync.Mutex
}

// discoverAssets 在模型所在目录中查找未指定的 lexicon.txt 和 espeak-ng-data。
func discoverAssets(opts *VITSOptions) {
	dir := filepath.Dir(opts.Model)
	if opts.Lexicon == "" {
		if p := filepath.Join(dir, "lexicon.txt"); fileExists(p) {
			opts.Lexicon = p
		}
	}
	if opts.DataDir == "" {
		p := filepath.Join(dir, "espeak-ng-data")
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			opts.DataDir = p
		}
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// NewVITS 创建 sherpa-onnx 离线 TTS 实例。
func NewVITS(opts VITSOptions) (*VITS, error) {
	if !fileExists(opts.Model) {
		return nil, fmt.Errorf("[tts] VITS 模型不存在: %s: %w", opts.Model, ttserr.ErrNotFound)
	}
	discoverAssets(&opts)
	if opts.NumThreads <= 0 {
		opts.NumThreads = 1
	}

	config := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:       opts.Model,
				Tokens:      opts.Tokens,
				Lexicon:     opts.Lexicon,
				DataDir:     opts.DataDir,
				NoiseScale:  0.667,
				NoiseScaleW: 0.8,
				LengthScale: 1.0,
			},
			NumThreads: opts.NumThreads,
			Debug:      0,
			Provider:   opts.Device.Provider(),
		},
		MaxNumSentences: 1,
	}

	impl := sherpa.NewOfflineTts(&config)
	if impl == nil {
		return nil, fmt.Errorf("[tts] 创建 VITS 模型失败，模型: %s", opts.Model)
	}

	logger.Infof("[tts] VITS 模型已加载: %s (provider=%s)", opts.Model, opts.Device.Provider())
	return newVITS(&sherpaBackend{tts: impl}, opts.SpeakerID), nil
}

func newVITS(b vitsBackend, sid int) *VITS {
	return &VITS{backend: b, sid: sid}
}

// Synthesize 合成文本。VITS 模型不使用语音包和语言代码，也不返回音素。
func (v *VITS) Synthesize(ctx context.Context, input string, _ voice.Pack, _ string, speed float32) (*Result, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("[tts] 语速必须大于 0，当前 %v: %w", speed, ttserr.ErrInvalidArgument)
	}
	cleaned, err := text.Require(input)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	if v.backend == nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("[tts] VITS 模型已关闭: %w", ttserr.ErrGenerationFailed)
	}
	samples, rate := v.backend.Generate(cleaned, v.sid, speed)
	v.mu.Unlock()

	if len(samples) == 0 || rate <= 0 {
		return nil, fmt.Errorf("[tts] VITS 没有输出音频: %w", ttserr.ErrGenerationFailed)
	}

	logger.Debugf("[tts] vits: %d 个字符 -> %d 个样本 (%d Hz)", len([]rune(cleaned)), len(samples), rate)
	return &Result{Samples: samples, SampleRate: rate}, nil
}

// Close 释放 sherpa-onnx 资源。
func (v *VITS) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.backend != nil {
		v.backend.Close()
		v.backend = nil
	}
}
