package tts

import (
	"strings"
)

// MaxTokens 是单次推理的 token 上限（上下文 512 减去首尾填充）。
const MaxTokens = 510

// padToken 是首尾填充用的 token 编号。
const padToken int64 = 0

// defaultSymbols 是 Kokoro 的符号表，编号即下标。
var defaultSymbols = func() []string {
	const (
		pad         = "$"
		punctuation = ";:,.!?¡¿—…\"«»“” "
		letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
		lettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
	)
	syms := []string{pad}
	for _, group := range []string{punctuation, letters, lettersIPA} {
		for _, r := range group {
			syms = append(syms, string(r))
		}
	}
	return syms
}()

// Tokenizer 将音素串映射为 token 编号。
type Tokenizer struct {
	ids   map[rune]int64
	names map[int64]rune
}

// NewTokenizer 使用 config.json 中的 vocab 创建分词器，vocab 为空时使用内置符号表。
// 多字符的 vocab 键会被忽略。
func NewTokenizer(vocab map[string]int) *Tokenizer {
	t := &Tokenizer{ids: make(map[rune]int64), names: make(map[int64]rune)}
	if len(vocab) == 0 {
		for i, s := range defaultSymbols {
			t.add([]rune(s)[0], int64(i))
		}
		return t
	}
	for s, id := range vocab {
		rs := []rune(s)
		if len(rs) != 1 {
			continue
		}
		t.add(rs[0], int64(id))
	}
	return t
}

func (t *Tokenizer) add(r rune, id int64) {
	// 重复符号以后出现的编号为准
	t.ids[r] = id
	t.names[id] = r
}

// Encode 返回音素串中可识别符号的编号，未知符号被丢弃。
func (t *Tokenizer) Encode(phonemes string) []int64 {
	out := make([]int64, 0, len(phonemes))
	for _, r := range phonemes {
		if id, ok := t.ids[r]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Decode 把编号还原为音素串，未知编号被跳过。
func (t *Tokenizer) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if r, ok := t.names[id]; ok {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Len 返回词表大小。
func (t *Tokenizer) Len() int {
	return len(t.ids)
}
