package model

import (
	"fmt"
	"strings"

	"github.com/iabetor/moritts/internal/ttserr"
)

// Device 是推理设备，启动时选定一次并显式传给各组件的构造函数。
type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"
)

// ParseDevice 解析配置中的设备名称。
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case CPU, "":
		return CPU, nil
	case CUDA, "gpu":
		return CUDA, nil
	default:
		return "", fmt.Errorf("[model] 不支持的推理设备 %q: %w", s, ttserr.ErrInvalidArgument)
	}
}

// Provider 返回 sherpa-onnx 使用的 provider 名称。
func (d Device) Provider() string {
	if d == CUDA {
		return "cuda"
	}
	return "cpu"
}
