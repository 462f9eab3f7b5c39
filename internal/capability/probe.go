package capability

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
)

// Runner 执行一条外部命令并返回其标准输出。
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner 是默认 Runner，子进程的 stderr 被丢弃。
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// 子进程派生的孙进程可能持有 stdout，超时后最多再等一秒
	cmd.WaitDelay = time.Second
	return cmd.Output()
}

// Prober 执行两层硬件检测。
type Prober struct {
	run           Runner
	timeout       time.Duration
	vendor        string
	physicalCmd   []string
	functionalCmd []string
}

// Option 调整 Prober 行为，主要用于测试。
type Option func(*Prober)

// WithRunner 替换命令执行器。
func WithRunner(r Runner) Option {
	return func(p *Prober) { p.run = r }
}

// WithGOOS 按指定操作系统选择默认的设备清单命令。
func WithGOOS(goos string) Option {
	return func(p *Prober) {
		if p.physicalCmd == nil {
			p.physicalCmd = defaultPhysicalCommand(goos)
		}
	}
}

// NewProber 根据配置创建检测器。
func NewProber(cfg config.ProbeConfig, opts ...Option) (*Prober, error) {
	p := &Prober{
		run:     execRunner,
		timeout: cfg.Timeout,
		vendor:  cfg.Vendor,
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	if p.vendor == "" {
		p.vendor = "NVIDIA"
	}

	var err error
	if cfg.PhysicalCommand != "" {
		if p.physicalCmd, err = shellwords.Parse(cfg.PhysicalCommand); err != nil {
			return nil, fmt.Errorf("解析 probe.physical_command 失败: %w", err)
		}
	}
	if cfg.FunctionalCommand != "" {
		if p.functionalCmd, err = shellwords.Parse(cfg.FunctionalCommand); err != nil {
			return nil, fmt.Errorf("解析 probe.functional_command 失败: %w", err)
		}
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.physicalCmd == nil {
		p.physicalCmd = defaultPhysicalCommand(runtime.GOOS)
	}
	return p, nil
}

// defaultPhysicalCommand 返回查询显卡清单的系统命令，不支持的平台返回空。
func defaultPhysicalCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"powershell", "-NoProfile", "-Command",
			"Get-CimInstance Win32_VideoController | Select-Object -ExpandProperty Name"}
	case "linux":
		return []string{"lspci"}
	default:
		return []string{}
	}
}

// Physical 查询设备清单，返回第一块匹配厂商的设备名，没有则返回空串。
// 查询失败只记录日志。
func (p *Prober) Physical(ctx context.Context) string {
	if len(p.physicalCmd) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, p.physicalCmd[0], p.physicalCmd[1:]...)
	if err != nil {
		logger.Warnf("[probe] 物理设备检测失败: %v", err)
		return ""
	}

	vendor := strings.ToUpper(p.vendor)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.Contains(strings.ToUpper(line), vendor) {
			continue
		}
		// lspci: "01:00.0 VGA compatible controller: NVIDIA Corporation ..."
		if i := strings.Index(line, "controller: "); i >= 0 {
			line = line[i+len("controller: "):]
		}
		return line
	}
	return ""
}

// Functional 在受超时约束的子进程中检测加速运行时。
// 超时或任何执行错误都视为不可用，不会向上传播。
//
// 子进程输出支持两种格式：
//
//	"True|<设备名>" / "False|None"     （例如 python -c 检测脚本）
//	"<设备名>"                         （例如 nvidia-smi --query-gpu=name）
func (p *Prober) Functional(ctx context.Context) Functional {
	if len(p.functionalCmd) == 0 {
		return Functional{Err: errors.New("未配置功能检测命令")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, p.functionalCmd[0], p.functionalCmd[1:]...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Functional{Err: apperr.New(apperr.KindProbeTimeout,
			fmt.Sprintf("检测超时（%s），驱动可能无响应", p.timeout))}
	}
	if err != nil {
		return Functional{Err: fmt.Errorf("检测失败: %w", err)}
	}
	return parseFunctional(out)
}

func parseFunctional(out []byte) Functional {
	line := ""
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			line = s
			break
		}
	}
	if line == "" {
		return Functional{Err: errors.New("检测进程没有输出")}
	}

	if available, name, ok := strings.Cut(line, "|"); ok {
		if !strings.EqualFold(strings.TrimSpace(available), "true") {
			return Functional{Err: errors.New("加速运行时不可用")}
		}
		return Functional{Available: true, Device: strings.TrimSpace(name)}
	}
	return Functional{Available: true, Device: line}
}

// Analyze 同步执行两层检测并返回结论。
func (p *Prober) Analyze(ctx context.Context) Status {
	start := time.Now()
	physical := p.Physical(ctx)
	functional := p.Functional(ctx)
	status := Decide(functional, physical)

	logger.Infof("[probe] 硬件检测完成: tier=%s heavy=%v (%s) 耗时 %s",
		status.Tier, status.CanRunHeavy, status.Message, time.Since(start).Round(time.Millisecond))
	if status.Diagnostic != "" {
		logger.Debugf("[probe] 诊断信息: %s", status.Diagnostic)
	}
	return status
}

// Once 缓存第一次检测结论，之后的调用直接返回同一结果。
type Once struct {
	prober *Prober
	once   sync.Once
	status Status
}

// NewOnce 包装 Prober。
func NewOnce(p *Prober) *Once {
	return &Once{prober: p}
}

// Status 返回检测结论，首次调用时同步执行检测。
func (o *Once) Status(ctx context.Context) Status {
	o.once.Do(func() {
		o.status = o.prober.Analyze(ctx)
	})
	return o.status
}
