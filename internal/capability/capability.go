// Package capability 判断当前主机能否运行重型合成后端。
//
// 检测分两层：物理层查询操作系统设备清单中是否存在独立加速卡；
// 功能层在隔离子进程中尝试初始化加速运行时。两层结果经 Decide
// 合成为 Status。进程启动时同步检测一次，结果在进程生命周期内只读。
package capability

import (
	"fmt"
)

// Tier 硬件判定等级。
type Tier int

const (
	// TierCPUOnly 没有可用的加速设备。
	TierCPUOnly Tier = iota
	// TierDriverMissing 物理上存在加速卡，但运行时无法初始化。
	TierDriverMissing
	// TierReady 加速运行时可用，可以使用重型后端。
	TierReady
)

var tierNames = [...]string{"CPU_ONLY", "DRIVER_MISSING", "READY"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "UNKNOWN"
}

// MarshalText 以名称形式序列化。
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Status 硬件检测结论。
type Status struct {
	Tier           Tier   `json:"tier"`
	Message        string `json:"message"`
	CanRunHeavy    bool   `json:"can_run_heavy"`
	Device         string `json:"device,omitempty"`
	PhysicalDevice string `json:"physical_device,omitempty"`
	Diagnostic     string `json:"diagnostic,omitempty"`
}

// Functional 功能层检测结果。
type Functional struct {
	Available bool
	Device    string
	// Err 不可用时的诊断信息，超时为 apperr.KindProbeTimeout。
	Err error
}

// Decide 按决策表合成最终结论：
//
//	功能层可用                → READY（可运行重型后端）
//	功能层不可用但物理层存在  → DRIVER_MISSING
//	两者都没有                → CPU_ONLY
func Decide(f Functional, physical string) Status {
	switch {
	case f.Available:
		return Status{
			Tier:           TierReady,
			Message:        fmt.Sprintf("重型模式可用 (%s)", f.Device),
			CanRunHeavy:    true,
			Device:         f.Device,
			PhysicalDevice: physical,
		}
	case physical != "":
		s := Status{
			Tier:           TierDriverMissing,
			Message:        fmt.Sprintf("检测到加速卡 (%s)，但驱动或运行时不可用", physical),
			PhysicalDevice: physical,
		}
		if f.Err != nil {
			s.Diagnostic = f.Err.Error()
		}
		return s
	default:
		s := Status{
			Tier:    TierCPUOnly,
			Message: "标准模式（仅 CPU）",
		}
		if f.Err != nil {
			s.Diagnostic = f.Err.Error()
		}
		return s
	}
}
