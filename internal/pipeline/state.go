package pipeline

import (
	"sync"

	"github.com/iabetor/moritts/internal/logger"
)

// Stage 表示一次合成请求所处的阶段。
type Stage int

const (
	// StageIdle 空闲，没有请求在执行。
	StageIdle Stage = iota
	// StageLoading 正在加载语音包。
	StageLoading
	// StageSynthesizing 正在运行模型推理。
	StageSynthesizing
	// StageWriting 正在调整语速、归一化并写出 WAV。
	StageWriting
	// StagePlaying 正在播放合成结果。
	StagePlaying
)

var stageNames = [...]string{
	"Idle",
	"Loading",
	"Synthesizing",
	"Writing",
	"Playing",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的阶段转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  Stage
	onChange func(from, to Stage)
}

// NewStateMachine 创建一个初始阶段为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StageIdle}
}

// SetOnChange 注册阶段变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to Stage)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前阶段。
func (sm *StateMachine) Current() Stage {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换阶段。只有合法的转换才会生效：
//
//	Idle         → Loading       （收到请求）
//	Idle         → Synthesizing  （模型不需要语音包）
//	Loading      → Synthesizing
//	Synthesizing → Writing
//	Writing      → Playing       （请求播放）
//
// 任何阶段都可以回到 Idle（完成或出错）。
func (sm *StateMachine) Transition(to Stage) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[pipeline] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[pipeline] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StageIdle
	if from != StageIdle && sm.onChange != nil {
		sm.onChange(from, StageIdle)
	}
}

func validTransition(from, to Stage) bool {
	if to == StageIdle {
		return true
	}
	switch from {
	case StageIdle:
		return to == StageLoading || to == StageSynthesizing
	case StageLoading:
		return to == StageSynthesizing
	case StageSynthesizing:
		return to == StageWriting
	case StageWriting:
		return to == StagePlaying
	}
	return false
}
