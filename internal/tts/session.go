package tts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/ttserr"
)

// Session 是一次前向推理：tokens 与 style 进，波形出。
type Session interface {
	Run(tokens []int64, style []float32, speed float32) ([]float32, error)
	// Device 返回会话所在的推理设备。
	Device() model.Device
	Close()
}

var (
	ortMu   sync.Mutex
	ortRefs int
)

// defaultOrtLibraries 是未配置动态库时依次尝试的位置。
var defaultOrtLibraries = []string{
	"/usr/local/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.dylib",
	"/usr/lib/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
}

// ortLibraryPath 依次使用配置值、ONNXRUNTIME_LIB_PATH 和默认位置。
func ortLibraryPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("ONNXRUNTIME_LIB_PATH"); env != "" {
		return env
	}
	for _, p := range defaultOrtLibraries {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return defaultOrtLibraries[0]
}

func acquireRuntime(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ortRefs == 0 {
		ort.SetSharedLibraryPath(ortLibraryPath(libPath))
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("[tts] 初始化 ONNX Runtime 失败（可设置 ONNXRUNTIME_LIB_PATH）: %w", err)
		}
	}
	ortRefs++
	return nil
}

func releaseRuntime() {
	ortMu.Lock()
	defer ortMu.Unlock()

	ortRefs--
	if ortRefs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			logger.Warnf("[tts] 释放 ONNX Runtime 失败: %v", err)
		}
	}
}

// ioNames 记录图中实际使用的输入输出名称。
type ioNames struct {
	tokens, style, speed string
	output               string
}

// canonicalName 去掉导出时残留的 module. 前缀。
func canonicalName(name string) string {
	return strings.TrimPrefix(name, "module.")
}

// resolveIONames 在模型声明的名称中查找 tokens/style/speed 输入和波形输出，
// 兼容 kokoro v0.19 (tokens/audio) 与 v1.0 (input_ids/waveform) 两种命名。
func resolveIONames(inputs, outputs []string) (ioNames, error) {
	find := func(names []string, candidates ...string) string {
		for _, c := range candidates {
			for _, n := range names {
				if canonicalName(n) == c {
					return n
				}
			}
		}
		return ""
	}

	io := ioNames{
		tokens: find(inputs, "tokens", "input_ids"),
		style:  find(inputs, "style", "ref_s"),
		speed:  find(inputs, "speed"),
		output: find(outputs, "audio", "waveform"),
	}
	if io.output == "" && len(outputs) > 0 {
		io.output = outputs[0]
	}

	var missing []string
	if io.tokens == "" {
		missing = append(missing, "tokens")
	}
	if io.style == "" {
		missing = append(missing, "style")
	}
	if io.speed == "" {
		missing = append(missing, "speed")
	}
	if io.output == "" {
		missing = append(missing, "output")
	}
	if len(missing) > 0 {
		return ioNames{}, fmt.Errorf("[tts] 模型缺少 %s (输入 %v, 输出 %v): %w",
			strings.Join(missing, ", "), inputs, outputs, ttserr.ErrInvalidArgument)
	}
	return io, nil
}

// OrtSession 使用 ONNX Runtime 执行 Kokoro 导出的单图模型。
type OrtSession struct {
	session *ort.DynamicAdvancedSession
	names   ioNames
	device  model.Device
}

// OrtOptions 是创建 OrtSession 的参数。
type OrtOptions struct {
	ModelPath  string
	Library    string
	Device     model.Device
	NumThreads int
}

// NewOrtSession 加载 ONNX 模型并在指定设备上创建会话。
func NewOrtSession(opts OrtOptions) (*OrtSession, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("[tts] 模型权重不存在: %s: %w", opts.ModelPath, ttserr.ErrNotFound)
	}
	if err := acquireRuntime(opts.Library); err != nil {
		return nil, err
	}

	s, err := newOrtSession(opts)
	if err != nil {
		releaseRuntime()
		return nil, err
	}
	return s, nil
}

func newOrtSession(opts OrtOptions) (*OrtSession, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("[tts] 读取模型输入输出失败: %w", err)
	}
	inputs := make([]string, len(inInfo))
	for i, info := range inInfo {
		inputs[i] = info.Name
	}
	outputs := make([]string, len(outInfo))
	for i, info := range outInfo {
		outputs[i] = info.Name
	}
	names, err := resolveIONames(inputs, outputs)
	if err != nil {
		return nil, err
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建会话选项失败: %w", err)
	}
	defer so.Destroy()

	if opts.NumThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("[tts] 设置推理线程数失败: %w", err)
		}
	}
	if opts.Device == model.CUDA {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("[tts] 创建 CUDA 选项失败: %w", err)
		}
		defer cuda.Destroy()
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("[tts] 启用 CUDA 失败: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
		[]string{names.tokens, names.style, names.speed},
		[]string{names.output}, so)
	if err != nil {
		return nil, fmt.Errorf("[tts] 加载模型 %s 失败: %w", opts.ModelPath, err)
	}

	logger.Infof("[tts] 模型已加载到 %s: %s (输入 %s/%s/%s, 输出 %s)",
		opts.Device, opts.ModelPath, names.tokens, names.style, names.speed, names.output)
	return &OrtSession{session: session, names: names, device: opts.Device}, nil
}

// Run 执行一次推理，返回波形样本。
func (s *OrtSession) Run(tokens []int64, style []float32, speed float32) ([]float32, error) {
	tokensT, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建 tokens 张量失败: %w", err)
	}
	defer tokensT.Destroy()

	styleT, err := ort.NewTensor(ort.NewShape(1, int64(len(style))), style)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建 style 张量失败: %w", err)
	}
	defer styleT.Destroy()

	speedT, err := ort.NewTensor(ort.NewShape(1), []float32{speed})
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建 speed 张量失败: %w", err)
	}
	defer speedT.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{tokensT, styleT, speedT}, outputs); err != nil {
		return nil, fmt.Errorf("[tts] 模型推理失败: %w", err)
	}
	if outputs[0] == nil {
		return nil, nil
	}
	defer outputs[0].Destroy()

	wave, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("[tts] 模型输出类型 %T 不是 float32 张量", outputs[0])
	}
	return append([]float32(nil), wave.GetData()...), nil
}

// Device 返回会话所在的推理设备。
func (s *OrtSession) Device() model.Device {
	return s.device
}

// Close 释放会话，最后一个会话关闭时释放运行时。
func (s *OrtSession) Close() {
	if s.session == nil {
		return
	}
	if err := s.session.Destroy(); err != nil {
		logger.Warnf("[tts] 释放模型会话失败: %v", err)
	}
	s.session = nil
	releaseRuntime()
}
