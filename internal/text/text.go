// Package text 在合成前清理输入文本。
package text

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/iabetor/moritts/internal/ttserr"
)

var (
	spaceRun   = regexp.MustCompile(`[^\S\n]+`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
	titles     = regexp.MustCompile(`\b(D[Rr]|Mrs|MRS|Mr|MR|Ms|MS)\.( [A-Z])`)
)

// Clean 做与语言无关的清理：NFKC 归一化、合并空白、去掉首尾空白。
// 阿拉伯文表现形式等兼容字符会被还原为标准字符。
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var kokoroReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"«", "\"", "»", "\"",
	"“", "\"", "”", "\"",
	"(", "«", ")", "»",
	"、", ", ", "。", ". ", "！", "! ", "，", ", ",
	"：", ": ", "；", "; ", "？", "? ",
)

var titleWords = map[string]string{
	"DR": "Doctor", "Dr": "Doctor",
	"MR": "Mister", "Mr": "Mister",
	"MS": "Miss", "Ms": "Miss",
	"MRS": "Mrs", "Mrs": "Mrs",
}

// ForKokoro 在 Clean 的基础上统一引号与全角标点，并展开常见称谓，
// 与 Kokoro 训练时的文本处理保持一致。
func ForKokoro(s string) string {
	s = Clean(kokoroReplacer.Replace(s))
	s = titles.ReplaceAllStringFunc(s, func(m string) string {
		sub := titles.FindStringSubmatch(m)
		return titleWords[sub[1]] + sub[2]
	})
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Require 清理文本，结果为空时返回 ErrInvalidArgument。
func Require(s string) (string, error) {
	s = Clean(s)
	if s == "" {
		return "", fmt.Errorf("[text] 没有可合成的文本: %w", ttserr.ErrInvalidArgument)
	}
	return s, nil
}

// ReadFile 读取 UTF-8 文本文件并清理。
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("[text] 文本文件不存在: %s: %w", path, ttserr.ErrNotFound)
		}
		return "", fmt.Errorf("[text] 读取文本文件失败: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("[text] %s 不是有效的 UTF-8 文本: %w", path, ttserr.ErrInvalidArgument)
	}
	return Require(strings.TrimPrefix(string(data), "\ufeff"))
}
