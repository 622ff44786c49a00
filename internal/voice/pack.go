// Package voice 加载说话人 embedding（语音包）并展开为按长度分桶的映射。
package voice

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/ttserr"
)

const (
	// MinBucket 和 MaxBucket 是语音包映射覆盖的 token 数范围。
	MinBucket = 1
	MaxBucket = 510
	// DefaultWidth 是 Kokoro 的 style_dim。
	DefaultWidth = 256
)

// Embedding 是单个说话人 embedding 行向量。
type Embedding []float32

// Pack 将 token 数映射到对应的 embedding。
type Pack map[int]Embedding

// Style 返回长度为 n 时使用的 embedding，n 被钳位到 [MinBucket, MaxBucket]。
func (p Pack) Style(n int) Embedding {
	if n < MinBucket {
		n = MinBucket
	} else if n > MaxBucket {
		n = MaxBucket
	}
	return p[n]
}

// Normalize 将张量规整为形状 (1, width) 的单行 embedding。
// 三维取第 0 维第一个切片，二维再取第一行。
func Normalize(t Tensor, width int) (Embedding, error) {
	if len(t.Shape) == 3 {
		t = t.Slice0(0)
	}
	if len(t.Shape) == 2 {
		row := t.Slice0(0)
		t = Tensor{Shape: append([]int{1}, row.Shape...), Data: row.Data}
	}

	want := []int{1, width}
	if len(t.Shape) != 2 || t.Shape[0] != 1 || t.Shape[1] != width || len(t.Data) != width {
		return nil, &ttserr.ShapeError{Shape: t.Shape, Want: want}
	}

	e := make(Embedding, width)
	copy(e, t.Data)
	return e, nil
}

// Replicate 把同一个 embedding 放入 [MinBucket, MaxBucket] 的每个桶。
func Replicate(e Embedding) Pack {
	p := make(Pack, MaxBucket-MinBucket+1)
	for i := MinBucket; i <= MaxBucket; i++ {
		p[i] = e
	}
	return p
}

// Loader 从目录中按名称加载语音包。
type Loader struct {
	Dir   string
	Width int
}

// NewLoader 创建语音包加载器，width <= 0 时使用 DefaultWidth。
func NewLoader(dir string, width int) *Loader {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Loader{Dir: dir, Width: width}
}

var voiceExts = []string{".bin", ".json"}

// Load 读取 <Dir>/<name>.bin 或 <Dir>/<name>.json 并展开为 Pack。
func (l *Loader) Load(name string) (Pack, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("[voice] 非法的语音名称 %q: %w", name, ttserr.ErrInvalidArgument)
	}

	path, err := l.find(name)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[voice] 读取语音包 %s 失败: %w", path, err)
	}

	var t Tensor
	if filepath.Ext(path) == ".json" {
		t, err = DecodeJSON(raw)
	} else {
		t, err = DecodeRaw(raw, l.Width)
	}
	if err != nil {
		return nil, fmt.Errorf("[voice] 解析语音包 %s 失败: %w", path, err)
	}

	e, err := Normalize(t, l.Width)
	if err != nil {
		return nil, fmt.Errorf("[voice] 语音包 %s 形状无效: %w", path, err)
	}

	logger.Debugf("[voice] 已加载语音包 %s (原始形状 %v)", path, t.Shape)
	return Replicate(e), nil
}

func (l *Loader) find(name string) (string, error) {
	for _, ext := range voiceExts {
		p := filepath.Join(l.Dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("[voice] 未找到语音包: %s: %w",
		filepath.Join(l.Dir, name+voiceExts[0]), ttserr.ErrNotFound)
}

// List 返回目录中可用的语音名称，按字母排序。
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("[voice] 语音目录不存在: %s: %w", l.Dir, ttserr.ErrNotFound)
		}
		return nil, fmt.Errorf("[voice] 读取语音目录失败: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".bin" && ext != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
