package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/moritts/internal/logger"
)

// playbackPeriodFrames 是播放设备每个周期的帧数。
const playbackPeriodFrames = 512

// playbackPeriods 是设备缓冲的周期数。
const playbackPeriods = 2

// Player 使用 malgo (miniaudio) 在默认扬声器上播放合成结果。
type Player struct {
	ctx    *malgo.AllocatedContext
	mu     sync.Mutex
	closed bool
}

// NewPlayer 初始化播放上下文。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// pcmFeeder 按设备请求的帧数切出 16-bit 单声道 PCM，播完后补静音。
type pcmFeeder struct {
	pcm []byte
	pos int
	// tail 是数据送完后还需送出的整段静音周期数，保证设备缓冲中的最后一段已播出。
	tail   int
	silent int
}

// fill 写满 out，返回数据及尾部静音是否已全部送出。
func (f *pcmFeeder) fill(out []byte) bool {
	exhausted := f.pos >= len(f.pcm)
	n := copy(out, f.pcm[f.pos:])
	f.pos += n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if exhausted {
		f.silent++
	}
	return f.pos >= len(f.pcm) && f.silent >= f.tail
}

// Play 播放单声道 float32 样本，阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("[audio] 播放器已关闭")
	}
	p.mu.Unlock()

	feeder := &pcmFeeder{pcm: Float32ToBytes(samples), tail: playbackPeriods}
	done := make(chan struct{}, 1)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInFrames = playbackPeriodFrames
	cfg.Periods = playbackPeriods

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			// 每帧 1 声道 × 2 字节
			if feeder.fill(out[:int(frameCount)*2]) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}
	defer device.Stop()

	logger.Debugf("[audio] 开始播放 %d 个样本 (%d Hz)", len(samples), sampleRate)
	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debug("[audio] 播放完成")
		return nil
	}
}

// Close 释放播放上下文，可重复调用。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
