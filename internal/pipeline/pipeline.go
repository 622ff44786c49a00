// Package pipeline 串联一次合成请求：加载语音包、推理、调整语速、归一化、写出 WAV。
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iabetor/moritts/internal/audio"
	"github.com/iabetor/moritts/internal/config"
	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/tts"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

// VoiceLoader 按名称加载语音包。
type VoiceLoader interface {
	Load(name string) (voice.Pack, error)
}

// Player 播放合成结果。
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}

// Options 控制后处理与输出。
type Options struct {
	// Voices 为 nil 时不加载语音包（单说话人模型）。
	Voices VoiceLoader
	// Player 为 nil 时忽略播放请求。
	Player Player
	// Peak 是归一化后的峰值，<= 0 时使用 audio.DefaultPeak。
	Peak float32
	// SpeedMode 是 config.SpeedModeResample 或 config.SpeedModeModel。
	SpeedMode string
	// SampleRate 在模型没有报告采样率时使用。
	SampleRate int
}

// Request 是一次合成请求。
type Request struct {
	Text   string
	Voice  string
	Lang   string
	Speed  float64
	Output string
	Play   bool
}

// Outcome 描述一次成功的合成。
type Outcome struct {
	Output     string
	Phonemes   string
	SampleRate int
	Samples    int
	Duration   time.Duration
}

// Pipeline 是合成流程的编排器。
type Pipeline struct {
	synth tts.Synthesizer
	opts  Options
	state *StateMachine
}

// New 创建流水线，synth 的生命周期随 Pipeline.Close 结束。
func New(synth tts.Synthesizer, opts Options) *Pipeline {
	if opts.Peak <= 0 {
		opts.Peak = audio.DefaultPeak
	}
	if opts.SpeedMode == "" {
		opts.SpeedMode = config.SpeedModeResample
	}
	return &Pipeline{synth: synth, opts: opts, state: NewStateMachine()}
}

// State 返回流水线的阶段状态机，可用于注册进度回调。
func (p *Pipeline) State() *StateMachine {
	return p.state
}

func validate(req Request) error {
	if req.Speed <= 0 || math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) {
		return fmt.Errorf("[pipeline] 语速必须为正数，当前 %v: %w", req.Speed, ttserr.ErrInvalidArgument)
	}
	if req.Output == "" {
		return fmt.Errorf("[pipeline] 未指定输出文件: %w", ttserr.ErrInvalidArgument)
	}
	return nil
}

// Run 执行一次完整的合成请求。任何一步失败都会中止请求。
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	defer p.state.ForceIdle()

	var pack voice.Pack
	if p.opts.Voices != nil {
		p.state.Transition(StageLoading)
		var err error
		pack, err = p.opts.Voices.Load(req.Voice)
		if err != nil {
			return nil, err
		}
		logger.Infof("[pipeline] 语音包已加载: %s", req.Voice)
	}

	p.state.Transition(StageSynthesizing)
	modelSpeed := float32(1)
	if p.opts.SpeedMode == config.SpeedModeModel {
		modelSpeed = float32(req.Speed)
	}
	start := time.Now()
	res, err := p.synth.Synthesize(ctx, req.Text, pack, req.Lang, modelSpeed)
	if err != nil {
		return nil, err
	}
	logger.Infof("[pipeline] 合成完成，耗时 %v，%d 个样本", time.Since(start).Round(time.Millisecond), len(res.Samples))

	p.state.Transition(StageWriting)
	samples := res.Samples
	if p.opts.SpeedMode != config.SpeedModeModel {
		samples, err = audio.AdjustSpeed(samples, req.Speed)
		if err != nil {
			return nil, err
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("[pipeline] 调整语速后没有音频: %w", ttserr.ErrGenerationFailed)
	}
	samples = audio.NormalizeTo(samples, p.opts.Peak)

	rate := res.SampleRate
	if rate <= 0 {
		rate = p.opts.SampleRate
	}
	if err := audio.WriteWAV(req.Output, samples, rate); err != nil {
		return nil, err
	}
	logger.Infof("[pipeline] 音频已保存: %s (%d Hz)", req.Output, rate)

	out := &Outcome{
		Output:     req.Output,
		Phonemes:   res.Phonemes,
		SampleRate: rate,
		Samples:    len(samples),
		Duration:   time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second)),
	}

	if req.Play {
		if p.opts.Player == nil {
			logger.Warnf("[pipeline] 没有可用的播放器，跳过播放")
			return out, nil
		}
		p.state.Transition(StagePlaying)
		if err := p.opts.Player.Play(ctx, samples, rate); err != nil {
			return out, fmt.Errorf("[pipeline] 播放失败: %w", err)
		}
	}
	return out, nil
}

// Close 释放模型资源。
func (p *Pipeline) Close() {
	if p.synth != nil {
		p.synth.Close()
		p.synth = nil
	}
}
