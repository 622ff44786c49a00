// Package ttserr 定义合成流程中可区分的错误类别。
package ttserr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示语音包或模型文件不存在。
	ErrNotFound = errors.New("not found")
	// ErrShapeMismatch 表示语音 embedding 无法规整到期望形状。
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidArgument 表示调用参数非法（语速非正、文本为空等）。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrGenerationFailed 表示模型没有产出音频。
	ErrGenerationFailed = errors.New("generation failed")
)

// ShapeError 记录无法规整的张量形状。
type ShapeError struct {
	Shape []int
	Want  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch: got %v, want %v", e.Shape, e.Want)
}

// Is 让 errors.Is(err, ErrShapeMismatch) 对 ShapeError 成立。
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// Kind 返回错误类别的简短名称，用于日志。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrShapeMismatch):
		return "ShapeMismatch"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrGenerationFailed):
		return "GenerationFailed"
	default:
		return "Internal"
	}
}
