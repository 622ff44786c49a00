package voice

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/iabetor/moritts/internal/ttserr"
)

// Tensor 是按行优先存放的 float32 张量。
type Tensor struct {
	Shape []int
	Data  []float32
}

// Size 返回形状各维乘积。
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// sizeWithin 返回形状各维乘积；任一维非正或乘积超过 limit 时返回 false。
func sizeWithin(shape []int, limit int) (int, bool) {
	n := 1
	for _, d := range shape {
		if d <= 0 || n > limit/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// Slice0 取第 0 维的第 i 个切片，结果少一维。
func (t Tensor) Slice0(i int) Tensor {
	if len(t.Shape) == 0 || i < 0 || i >= t.Shape[0] {
		return Tensor{}
	}
	inner := Tensor{Shape: append([]int(nil), t.Shape[1:]...)}
	stride, ok := sizeWithin(inner.Shape, len(t.Data))
	if !ok || i >= len(t.Data)/stride {
		return Tensor{}
	}
	inner.Data = t.Data[i*stride : (i+1)*stride]
	return inner
}

// jsonTensor 是 JSON 语音文件的布局，data 可以是任意嵌套的数字数组。
type jsonTensor struct {
	Dims []int       `json:"dims"`
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

// DecodeJSON 解析 {"dims": [...], "data": [...]} 形式的张量。
func DecodeJSON(raw []byte) (Tensor, error) {
	var jt jsonTensor
	if err := json.Unmarshal(raw, &jt); err != nil {
		return Tensor{}, fmt.Errorf("[voice] 解析 JSON 张量失败: %w", err)
	}
	if jt.Type != "" && jt.Type != "float32" && jt.Type != "float64" {
		return Tensor{}, fmt.Errorf("[voice] 不支持的张量类型 %q: %w", jt.Type, ttserr.ErrInvalidArgument)
	}

	var flat []float32
	if err := flatten(jt.Data, &flat); err != nil {
		return Tensor{}, err
	}

	t := Tensor{Shape: jt.Dims, Data: flat}
	if len(t.Shape) == 0 {
		t.Shape = []int{len(flat)}
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return Tensor{}, &ttserr.ShapeError{Shape: t.Shape}
		}
	}
	if n, ok := sizeWithin(t.Shape, len(flat)); !ok || n != len(flat) {
		return Tensor{}, fmt.Errorf("[voice] dims %v 与 %d 个值不符: %w",
			t.Shape, len(flat), ttserr.ErrShapeMismatch)
	}
	return t, nil
}

func flatten(v interface{}, out *[]float32) error {
	switch x := v.(type) {
	case float64:
		*out = append(*out, float32(x))
	case []interface{}:
		for _, e := range x {
			if err := flatten(e, out); err != nil {
				return err
			}
		}
	case nil:
	default:
		return fmt.Errorf("[voice] 张量数据包含非数字元素 %T: %w", v, ttserr.ErrInvalidArgument)
	}
	return nil
}

// DecodeRaw 解析小端 float32 原始数据，形状推断为 (n/width, 1, width)。
func DecodeRaw(raw []byte, width int) (Tensor, error) {
	if width <= 0 {
		return Tensor{}, fmt.Errorf("[voice] 非法的 embedding 宽度 %d: %w", width, ttserr.ErrInvalidArgument)
	}
	rowBytes := 4 * width
	if len(raw) == 0 || len(raw)%rowBytes != 0 {
		return Tensor{}, &ttserr.ShapeError{Shape: []int{len(raw) / 4}, Want: []int{1, width}}
	}

	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return Tensor{Shape: []int{len(data) / width, 1, width}, Data: data}, nil
}
