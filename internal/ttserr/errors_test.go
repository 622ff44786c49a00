package ttserr

import (
	"errors"
	"fmt"
	"testing"
)

func TestShapeError_IsShapeMismatch(t *testing.T) {
	err := fmt.Errorf("[voice] 加载失败: %w", &ShapeError{Shape: []int{2, 255}, Want: []int{1, 256}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected wrapped ShapeError to match ErrShapeMismatch")
	}
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected errors.As to find ShapeError")
	}
	if se.Shape[1] != 255 {
		t.Errorf("expected offending shape to be kept, got %v", se.Shape)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ErrNotFound), "NotFound"},
		{&ShapeError{Shape: []int{3}}, "ShapeMismatch"},
		{fmt.Errorf("x: %w", ErrInvalidArgument), "InvalidArgument"},
		{fmt.Errorf("x: %w", ErrGenerationFailed), "GenerationFailed"},
		{errors.New("boom"), "Internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
