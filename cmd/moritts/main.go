package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/moritts/internal/audio"
	"github.com/iabetor/moritts/internal/config"
	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/pipeline"
	"github.com/iabetor/moritts/internal/tts"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

const defaultText = "Hello, this is a test of the MoriTTS system."

type options struct {
	text       string
	voice      string
	output     string
	speed      float64
	configPath string
	modelDir   string
	lang       string
	play       bool
	listVoices bool
	logLevel   string
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.text, "t", defaultText, "要合成的文本")
	flag.StringVar(&o.text, "text", defaultText, "要合成的文本")
	flag.StringVar(&o.voice, "v", "af_bella", "语音包名称")
	flag.StringVar(&o.voice, "voice", "af_bella", "语音包名称")
	flag.StringVar(&o.output, "o", "output.wav", "输出 WAV 文件")
	flag.StringVar(&o.output, "output", "output.wav", "输出 WAV 文件")
	flag.Float64Var(&o.speed, "s", 1.0, "语速倍数")
	flag.Float64Var(&o.speed, "speed", 1.0, "语速倍数")
	flag.StringVar(&o.configPath, "config", "configs/moritts.yaml", "配置文件路径（不存在时使用默认值）")
	flag.StringVar(&o.modelDir, "model-dir", "", "Kokoro 模型目录，覆盖配置")
	flag.StringVar(&o.lang, "lang", "a", "语言代码: a（美式英语）或 b（英式英语）")
	flag.BoolVar(&o.play, "play", false, "合成后直接播放")
	flag.BoolVar(&o.listVoices, "list-voices", false, "列出可用的语音包后退出")
	flag.StringVar(&o.logLevel, "log-level", "", "日志级别，覆盖配置")
	flag.Parse()
	return o
}

// stdout 接收面向用户的结果和错误信息。
var stdout io.Writer = os.Stdout

// reportError 把失败原因打印到标准输出。
func reportError(err error) {
	fmt.Fprintf(stdout, "Error: %v\n", err)
}

// setup 加载配置、应用命令行覆盖并初始化日志。
func setup(opts *options) (*config.Config, error) {
	cfg, err := config.LoadOptional(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if opts.modelDir != "" {
		cfg.Model.Dir = opts.modelDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func main() {
	opts := parseFlags()

	cfg, err := setup(opts)
	if err != nil {
		reportError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, opts)
	stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Infof("[main] 已取消")
		} else {
			reportError(err)
			logger.Errorf("[main] 合成失败 (%s): %v", ttserr.Kind(err), err)
		}
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	if opts.listVoices {
		return listVoices(cfg)
	}

	device, err := model.ParseDevice(cfg.Model.Device)
	if err != nil {
		return err
	}

	fetcher := model.NewFetcher(cfg.Cache.Dir)
	configPath, err := fetcher.Resolve(ctx, cfg.Model.ConfigPath())
	if err != nil {
		return err
	}
	weightsPath, err := fetcher.Resolve(ctx, cfg.Model.WeightsPath())
	if err != nil {
		return err
	}

	logger.Infof("[main] 加载 Kokoro 模型: %s (device=%s)", weightsPath, device)
	kokoro, kcfg, err := tts.LoadKokoro(tts.KokoroOptions{
		ConfigPath:  configPath,
		WeightsPath: weightsPath,
		OnnxLibrary: cfg.Model.OnnxLibrary,
		Espeak:      cfg.Model.Espeak,
		Device:      device,
		NumThreads:  cfg.Model.NumThreads,
	})
	if err != nil {
		return err
	}

	popts := pipeline.Options{
		Voices:     voice.NewLoader(cfg.Model.VoicesPath(), kcfg.StyleDim),
		Peak:       cfg.Audio.Peak,
		SpeedMode:  cfg.Audio.SpeedMode,
		SampleRate: cfg.Audio.SampleRate,
	}
	if opts.play {
		player, err := audio.NewPlayer()
		if err != nil {
			logger.Warnf("[main] 播放器不可用: %v", err)
		} else {
			defer player.Close()
			popts.Player = player
		}
	}

	p := pipeline.New(kokoro, popts)
	defer p.Close()

	out, err := p.Run(ctx, pipeline.Request{
		Text:   opts.text,
		Voice:  opts.voice,
		Lang:   opts.lang,
		Speed:  opts.speed,
		Output: opts.output,
		Play:   opts.play,
	})
	if out != nil {
		fmt.Fprintf(stdout, "Phonemes: %s\n", out.Phonemes)
		fmt.Fprintf(stdout, "Audio saved to %s (%.2fs, %d Hz)\n", out.Output, out.Duration.Seconds(), out.SampleRate)
	}
	return err
}

func listVoices(cfg *config.Config) error {
	names, err := voice.NewLoader(cfg.Model.VoicesPath(), 0).List()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return nil
}
