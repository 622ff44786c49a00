package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 MoriTTS 的顶层配置结构。
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Persian PersianConfig `yaml:"persian"`
	Audio   AudioConfig   `yaml:"audio"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig Kokoro 模型配置。
type ModelConfig struct {
	// Dir 模型目录，包含 config.json、权重和 voices/。
	Dir string `yaml:"dir"`
	// ConfigFile 相对 Dir 的模型超参数文件。
	ConfigFile string `yaml:"config_file"`
	// Weights 相对 Dir 的 ONNX 权重文件。
	Weights string `yaml:"weights"`
	// VoicesDir 相对 Dir 的语音包目录。
	VoicesDir string `yaml:"voices_dir"`
	// Device 推理设备: cpu 或 cuda（gpu 为 cuda 的别名）。
	Device     string `yaml:"device"`
	NumThreads int    `yaml:"num_threads"`
	// OnnxLibrary ONNX Runtime 动态库路径，为空时读取 ONNXRUNTIME_LIB_PATH。
	OnnxLibrary string `yaml:"onnx_library"`
	// Espeak espeak-ng 可执行文件。
	Espeak string `yaml:"espeak"`
}

// ConfigPath 返回模型超参数文件的完整路径。
func (m ModelConfig) ConfigPath() string { return m.resolve(m.ConfigFile) }

// WeightsPath 返回权重文件的完整路径。
func (m ModelConfig) WeightsPath() string { return m.resolve(m.Weights) }

// VoicesPath 返回语音包目录的完整路径。
func (m ModelConfig) VoicesPath() string { return m.resolve(m.VoicesDir) }

func (m ModelConfig) resolve(p string) string {
	// URL 由下载器处理
	if filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// PersianConfig 波斯语 VITS 模型配置。
type PersianConfig struct {
	Male       VitsConfig `yaml:"male"`
	Female     VitsConfig `yaml:"female"`
	NumThreads int        `yaml:"num_threads"`
}

// VitsConfig 单个 VITS 模型的文件位置，支持 http(s) URL。
type VitsConfig struct {
	Model     string `yaml:"model"`
	Tokens    string `yaml:"tokens"`
	Lexicon   string `yaml:"lexicon"`
	DataDir   string `yaml:"data_dir"`
	SpeakerID int    `yaml:"speaker_id"`
}

// AudioConfig 输出音频配置。
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	Peak       float32 `yaml:"peak"`
	// SpeedMode 语速调整方式: resample（线性重采样，音高随之变化）或 model（交给模型时长预测）。
	SpeedMode string `yaml:"speed_mode"`
}

// CacheConfig 远程模型下载缓存。
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// 语速调整方式。
const (
	SpeedModeResample = "resample"
	SpeedModeModel    = "model"
)

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。path 为空时返回默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置文件 %s 无效: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional 与 Load 相同，但文件不存在时返回默认配置。
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	switch c.Model.Device {
	case "cpu", "cuda", "gpu":
	default:
		return fmt.Errorf("model.device 只能是 cpu、cuda 或 gpu，当前为 %q", c.Model.Device)
	}
	switch c.Audio.SpeedMode {
	case SpeedModeResample, SpeedModeModel:
	default:
		return fmt.Errorf("audio.speed_mode 只能是 %s 或 %s，当前为 %q", SpeedModeResample, SpeedModeModel, c.Audio.SpeedMode)
	}
	if c.Audio.Peak <= 0 || c.Audio.Peak > 1 {
		return fmt.Errorf("audio.peak 必须在 (0, 1] 内，当前为 %v", c.Audio.Peak)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate 必须为正数，当前为 %d", c.Audio.SampleRate)
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "models/Kokoro-82M"
	}
	if cfg.Model.ConfigFile == "" {
		cfg.Model.ConfigFile = "config.json"
	}
	if cfg.Model.Weights == "" {
		cfg.Model.Weights = "kokoro-v0_19.onnx"
	}
	if cfg.Model.VoicesDir == "" {
		cfg.Model.VoicesDir = "voices"
	}
	if cfg.Model.Device == "" {
		cfg.Model.Device = "cpu"
	}
	cfg.Model.Device = strings.ToLower(cfg.Model.Device)
	if cfg.Model.NumThreads == 0 {
		cfg.Model.NumThreads = 2
	}
	if cfg.Model.Espeak == "" {
		cfg.Model.Espeak = "espeak-ng"
	}

	if cfg.Persian.Male.Model == "" {
		cfg.Persian.Male.Model = "models/persian-tts-male1-vits/model.onnx"
	}
	if cfg.Persian.Male.Tokens == "" {
		cfg.Persian.Male.Tokens = "models/persian-tts-male1-vits/tokens.txt"
	}
	if cfg.Persian.Female.Model == "" {
		cfg.Persian.Female.Model = "models/persian-tts-female-vits/model.onnx"
	}
	if cfg.Persian.Female.Tokens == "" {
		cfg.Persian.Female.Tokens = "models/persian-tts-female-vits/tokens.txt"
	}
	if cfg.Persian.NumThreads == 0 {
		cfg.Persian.NumThreads = 2
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 24000
	}
	if cfg.Audio.Peak == 0 {
		cfg.Audio.Peak = 0.9
	}
	if cfg.Audio.SpeedMode == "" {
		cfg.Audio.SpeedMode = SpeedModeResample
	}

	if cfg.Cache.Dir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.Dir = filepath.Join(home, ".cache", "moritts")
		} else {
			cfg.Cache.Dir = "./.moritts-cache"
		}
	}
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.Model.Dir = expandHome(cfg.Model.Dir)
	cfg.Log.File = expandHome(cfg.Log.File)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// expandHome 展开 ~/ 前缀，Go 不会自动处理。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
