package tts

import (
	"context"

	"github.com/iabetor/moritts/internal/voice"
)

// Synthesizer 定义模型适配器接口。
type Synthesizer interface {
	// Synthesize 将文本转换为单声道 float32 音频。
	// voice 是按 token 数分桶的说话人 embedding，单说话人模型可以忽略。
	// 模型没有产出音频时返回 ttserr.ErrGenerationFailed。
	Synthesize(ctx context.Context, text string, voice voice.Pack, lang string, speed float32) (*Result, error)
	// Close 释放模型占用的本地资源。
	Close()
}

// Result 是一次合成的输出。
type Result struct {
	Samples    []float32
	SampleRate int
	// Phonemes 是送入模型的音素串，仅用于诊断显示，可能为空。
	Phonemes string
}
