package engine

import (
	"fmt"
	"strings"
)

// Tier 请求的质量档位。
type Tier int

const (
	// TierStandard 只使用常驻轻量后端。
	TierStandard Tier = iota
	// TierHeavy 优先使用重型后端，失败时回退。
	TierHeavy
)

func (t Tier) String() string {
	if t == TierHeavy {
		return "heavy"
	}
	return "standard"
}

// ParseTier 解析请求中的档位字符串，空串视为 standard。
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "light":
		return TierStandard, nil
	case "heavy", "hd", "high":
		return TierHeavy, nil
	default:
		return TierStandard, fmt.Errorf("未知的档位: %s", s)
	}
}

// Backend 标识产出音频的后端。
type Backend int

const (
	BackendPrimary Backend = iota
	BackendSecondary
)

func (b Backend) String() string {
	if b == BackendSecondary {
		return "secondary"
	}
	return "primary"
}

// MarshalText 以名称形式序列化。
func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Step 回退流程的下一步动作。
type Step int

const (
	StepSecondary Step = iota
	StepPrimary
	StepDone
	StepFail
)

func (s Step) String() string {
	switch s {
	case StepSecondary:
		return "secondary"
	case StepPrimary:
		return "primary"
	case StepDone:
		return "done"
	default:
		return "fail"
	}
}

// Outcome 一次后端调用的结果，Err 为 nil 表示拿到了非空音频。
type Outcome struct {
	Backend Backend
	Err     error
}

// Plan 返回一次合成的第一步：
// 只有请求 heavy 且硬件允许时才尝试重型后端。
func Plan(tier Tier, canRunHeavy bool) Step {
	if tier == TierHeavy && canRunHeavy {
		return StepSecondary
	}
	return StepPrimary
}

// Next 根据上一步的结果决定下一步。
// 重型后端的任何失败都回退到轻量后端；轻量后端失败则整体失败。
func Next(o Outcome) Step {
	switch {
	case o.Err == nil:
		return StepDone
	case o.Backend == BackendSecondary:
		return StepPrimary
	default:
		return StepFail
	}
}
