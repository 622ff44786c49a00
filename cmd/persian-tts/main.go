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
	"github.com/iabetor/moritts/internal/text"
	"github.com/iabetor/moritts/internal/tts"
	"github.com/iabetor/moritts/internal/ttserr"
)

type options struct {
	text       string
	file       string
	output     string
	female     bool
	configPath string
	play       bool
	logLevel   string
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.text, "t", "", "要合成的波斯语文本")
	flag.StringVar(&o.text, "text", "", "要合成的波斯语文本")
	flag.StringVar(&o.file, "f", "", "从 UTF-8 文本文件读取")
	flag.StringVar(&o.file, "file", "", "从 UTF-8 文本文件读取")
	flag.StringVar(&o.output, "o", "output.wav", "输出 WAV 文件")
	flag.StringVar(&o.output, "output", "output.wav", "输出 WAV 文件")
	flag.BoolVar(&o.female, "female", false, "使用女声模型（默认男声）")
	flag.StringVar(&o.configPath, "config", "configs/moritts.yaml", "配置文件路径（不存在时使用默认值）")
	flag.BoolVar(&o.play, "play", false, "合成后直接播放")
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

// inputText 返回 -t 或 -f 指定的文本，两者必须且只能给出一个。
func inputText(opts *options) (string, error) {
	switch {
	case opts.text != "" && opts.file != "":
		return "", fmt.Errorf("-t 与 -f 不能同时使用: %w", ttserr.ErrInvalidArgument)
	case opts.file != "":
		return text.ReadFile(opts.file)
	case opts.text != "":
		return text.Require(opts.text)
	default:
		return "", fmt.Errorf("必须通过 -t 或 -f 提供文本: %w", ttserr.ErrInvalidArgument)
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	input, err := inputText(opts)
	if err != nil {
		return err
	}

	vc, gender := cfg.Persian.Male, "male"
	if opts.female {
		vc, gender = cfg.Persian.Female, "female"
	}

	device, err := model.ParseDevice(cfg.Model.Device)
	if err != nil {
		return err
	}

	fetcher := model.NewFetcher(cfg.Cache.Dir)
	modelPath, err := fetcher.Resolve(ctx, vc.Model)
	if err != nil {
		return err
	}
	tokensPath, err := fetcher.Resolve(ctx, vc.Tokens)
	if err != nil {
		return err
	}
	lexiconPath := vc.Lexicon
	if lexiconPath != "" {
		if lexiconPath, err = fetcher.Resolve(ctx, lexiconPath); err != nil {
			return err
		}
	}

	logger.Infof("[main] 加载波斯语 %s 模型: %s", gender, modelPath)
	vits, err := tts.NewVITS(tts.VITSOptions{
		Model:      modelPath,
		Tokens:     tokensPath,
		Lexicon:    lexiconPath,
		DataDir:    vc.DataDir,
		SpeakerID:  vc.SpeakerID,
		NumThreads: cfg.Persian.NumThreads,
		Device:     device,
	})
	if err != nil {
		return err
	}

	popts := pipeline.Options{
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

	p := pipeline.New(vits, popts)
	defer p.Close()

	out, err := p.Run(ctx, pipeline.Request{
		Text:   input,
		Speed:  1.0,
		Output: opts.output,
		Play:   opts.play,
	})
	if out != nil {
		fmt.Fprintf(stdout, "Audio saved to %s (%.2fs, %d Hz)\n", out.Output, out.Duration.Seconds(), out.SampleRate)
	}
	return err
}
