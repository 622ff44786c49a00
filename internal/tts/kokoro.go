package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/text"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

// Components 汇集 Kokoro 推理所需的各个子组件。
type Components struct {
	Phonemizer Phonemizer
	Tokenizer  *Tokenizer
	Session    Session
}

// Kokoro 是 Kokoro 模型的适配器。
type Kokoro struct {
	c          Components
	device     model.Device
	sampleRate int
	styleDim   int
}

// NewKokoro 组装适配器，要求推理会话位于 device 上。
func NewKokoro(c Components, device model.Device, sampleRate, styleDim int) (*Kokoro, error) {
	if c.Phonemizer == nil || c.Tokenizer == nil || c.Session == nil {
		return nil, fmt.Errorf("[tts] Kokoro 组件不完整: %w", ttserr.ErrInvalidArgument)
	}
	if got := c.Session.Device(); got != device {
		return nil, fmt.Errorf("[tts] 推理会话位于 %s，期望 %s: %w", got, device, ttserr.ErrInvalidArgument)
	}
	if sampleRate <= 0 {
		sampleRate = model.DefaultSampleRate
	}
	if styleDim <= 0 {
		styleDim = voice.DefaultWidth
	}
	return &Kokoro{c: c, device: device, sampleRate: sampleRate, styleDim: styleDim}, nil
}

// KokoroOptions 描述从磁盘加载 Kokoro 所需的文件与设备。
type KokoroOptions struct {
	ConfigPath  string
	WeightsPath string
	OnnxLibrary string
	Espeak      string
	Device      model.Device
	NumThreads  int
}

// LoadKokoro 读取 config.json、加载 ONNX 权重并组装适配器。
func LoadKokoro(opts KokoroOptions) (*Kokoro, *model.KokoroConfig, error) {
	cfg, err := model.LoadKokoroConfig(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	session, err := NewOrtSession(OrtOptions{
		ModelPath:  opts.WeightsPath,
		Library:    opts.OnnxLibrary,
		Device:     opts.Device,
		NumThreads: opts.NumThreads,
	})
	if err != nil {
		return nil, nil, err
	}

	k, err := NewKokoro(Components{
		Phonemizer: NewEspeakPhonemizer(opts.Espeak),
		Tokenizer:  NewTokenizer(cfg.Vocab),
		Session:    session,
	}, opts.Device, cfg.SampleRate, cfg.StyleDim)
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	return k, cfg, nil
}

// SampleRate 返回输出采样率。
func (k *Kokoro) SampleRate() int {
	return k.sampleRate
}

// Synthesize 完成 文本 -> 音素 -> token -> 波形 的一次合成。
func (k *Kokoro) Synthesize(ctx context.Context, input string, pack voice.Pack, lang string, speed float32) (*Result, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("[tts] 语速必须大于 0，当前 %v: %w", speed, ttserr.ErrInvalidArgument)
	}
	normalized := text.ForKokoro(input)
	if normalized == "" {
		return nil, fmt.Errorf("[tts] 没有可合成的文本: %w", ttserr.ErrInvalidArgument)
	}

	ps, err := k.c.Phonemizer.Phonemize(ctx, normalized, lang)
	if err != nil {
		return nil, err
	}

	tokens := k.c.Tokenizer.Encode(ps)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("[tts] 文本没有产生任何音素: %w", ttserr.ErrGenerationFailed)
	}
	if len(tokens) > MaxTokens {
		logger.Warnf("[tts] 音素数 %d 超过上限 %d，已截断", len(tokens), MaxTokens)
		tokens = tokens[:MaxTokens]
	}

	style := pack.Style(len(tokens))
	if len(style) != k.styleDim {
		return nil, &ttserr.ShapeError{Shape: []int{1, len(style)}, Want: []int{1, k.styleDim}}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	padded := make([]int64, 0, len(tokens)+2)
	padded = append(padded, padToken)
	padded = append(padded, tokens...)
	padded = append(padded, padToken)

	samples, err := k.c.Session.Run(padded, style, speed)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("[tts] 模型没有输出音频: %w", ttserr.ErrGenerationFailed)
	}

	logger.Debugf("[tts] kokoro: %d 个 token -> %d 个样本 (%s)", len(tokens), len(samples), k.device)
	return &Result{
		Samples:    samples,
		SampleRate: k.sampleRate,
		Phonemes:   k.c.Tokenizer.Decode(tokens),
	}, nil
}

// Close 释放推理会话。
func (k *Kokoro) Close() {
	k.c.Session.Close()
}
