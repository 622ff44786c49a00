package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/ttserr"
)

// Phonemizer 将文本转换为 IPA 音素串。
type Phonemizer interface {
	Phonemize(ctx context.Context, text, lang string) (string, error)
}

// espeakVoices 把 Kokoro 的语言代码映射为 espeak-ng 语音。
var espeakVoices = map[string]string{
	"a": "en-us",
	"b": "en-gb",
}

// EspeakPhonemizer 通过 espeak-ng 子进程生成音素。
type EspeakPhonemizer struct {
	bin string
}

// NewEspeakPhonemizer 创建使用指定 espeak-ng 可执行文件的音素器。
func NewEspeakPhonemizer(bin string) *EspeakPhonemizer {
	if bin == "" {
		bin = "espeak-ng"
	}
	return &EspeakPhonemizer{bin: bin}
}

// Phonemize 调用 espeak-ng 输出 IPA，并做 Kokoro 需要的修正。
func (p *EspeakPhonemizer) Phonemize(ctx context.Context, text, lang string) (string, error) {
	v, ok := espeakVoices[lang]
	if !ok {
		return "", fmt.Errorf("[tts] 不支持的语言代码 %q: %w", lang, ttserr.ErrInvalidArgument)
	}

	cmd := exec.CommandContext(ctx, p.bin, "-q", "--ipa", "-v", v, "--stdin")
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] espeak-ng stderr: %s", s)
		}
		return "", fmt.Errorf("[tts] espeak-ng 执行失败: %w", err)
	}

	ps := FixPhonemes(stdout.String(), lang)
	logger.Debugf("[tts] espeak-ng: %d 个字符 -> %d 个音素", len([]rune(text)), len([]rune(ps)))
	return ps, nil
}

var (
	langSwitch  = regexp.MustCompile(`\([a-z]{2,3}(-[a-z]+)?\)`)
	phonemeWS   = regexp.MustCompile(`\s+`)
	hundred     = regexp.MustCompile(`([a-zɹː])(hˈʌndɹɪd)`)
	trailingZ   = regexp.MustCompile(` z([;:,.!?¡¿—…"«»“” ]|$)`)
	ninetyFlaps = regexp.MustCompile(`(nˈaɪn)ti([^ː]|$)`)
)

var phonemeReplacer = strings.NewReplacer("ʲ", "j", "r", "ɹ", "x", "k", "ɬ", "l")

// FixPhonemes 规整 espeak-ng 的输出：去掉语言切换标记、合并空白，
// 并替换 Kokoro 词表中不存在的音素。
func FixPhonemes(ps, lang string) string {
	ps = langSwitch.ReplaceAllString(ps, "")
	ps = strings.TrimSpace(phonemeWS.ReplaceAllString(ps, " "))
	ps = phonemeReplacer.Replace(ps)
	ps = hundred.ReplaceAllString(ps, "$1 $2")
	ps = trailingZ.ReplaceAllString(ps, "z$1")
	if lang == "a" {
		ps = ninetyFlaps.ReplaceAllString(ps, "${1}di$2")
	}
	return ps
}
