package capability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/config"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		functional Functional
		physical   string
		wantTier   Tier
		wantHeavy  bool
	}{
		{"functional ok", Functional{Available: true, Device: "RTX 3090"}, "NVIDIA RTX 3090", TierReady, true},
		{"functional ok without physical", Functional{Available: true, Device: "A100"}, "", TierReady, true},
		{"driver missing", Functional{Err: errors.New("no driver")}, "NVIDIA GeForce GTX 1080", TierDriverMissing, false},
		{"cpu only", Functional{}, "", TierCPUOnly, false},
	}
	for _, tt := range tests {
		got := Decide(tt.functional, tt.physical)
		if got.Tier != tt.wantTier {
			t.Errorf("%s: Tier = %v, want %v", tt.name, got.Tier, tt.wantTier)
		}
		if got.CanRunHeavy != tt.wantHeavy {
			t.Errorf("%s: CanRunHeavy = %v, want %v", tt.name, got.CanRunHeavy, tt.wantHeavy)
		}
		if got.Message == "" {
			t.Errorf("%s: Message 不应为空", tt.name)
		}
	}
}

// fakeRunner 按命令名返回预设输出。
type fakeRunner map[string]func(ctx context.Context) ([]byte, error)

func (f fakeRunner) run(ctx context.Context, name string, _ ...string) ([]byte, error) {
	fn, ok := f[name]
	if !ok {
		return nil, errors.New("executable not found: " + name)
	}
	return fn(ctx)
}

func newTestProber(t *testing.T, cfg config.ProbeConfig, r fakeRunner) *Prober {
	t.Helper()
	p, err := NewProber(cfg, WithRunner(r.run), WithGOOS("linux"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAnalyze_NoAcceleratorNoDriver(t *testing.T) {
	r := fakeRunner{
		"lspci": func(context.Context) ([]byte, error) {
			return []byte("00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630\n"), nil
		},
	}
	p := newTestProber(t, config.ProbeConfig{FunctionalCommand: "nvidia-smi --query-gpu=name --format=csv,noheader"}, r)

	status := p.Analyze(context.Background())
	if status.Tier != TierCPUOnly || status.CanRunHeavy {
		t.Fatalf("status = %+v, want CPU_ONLY and can-run-heavy=false", status)
	}
}

func TestAnalyze_DriverMissing(t *testing.T) {
	r := fakeRunner{
		"lspci": func(context.Context) ([]byte, error) {
			return []byte("01:00.0 VGA compatible controller: NVIDIA Corporation GA102 [GeForce RTX 3090] (rev a1)\n"), nil
		},
		"nvidia-smi": func(context.Context) ([]byte, error) {
			return nil, errors.New("exit status 9")
		},
	}
	p := newTestProber(t, config.ProbeConfig{FunctionalCommand: "nvidia-smi"}, r)

	status := p.Analyze(context.Background())
	if status.Tier != TierDriverMissing {
		t.Fatalf("Tier = %v, want DRIVER_MISSING", status.Tier)
	}
	if status.PhysicalDevice != "NVIDIA Corporation GA102 [GeForce RTX 3090] (rev a1)" {
		t.Errorf("PhysicalDevice = %q", status.PhysicalDevice)
	}
	if !strings.Contains(status.Diagnostic, "exit status 9") {
		t.Errorf("Diagnostic = %q", status.Diagnostic)
	}
}

func TestAnalyze_Ready(t *testing.T) {
	r := fakeRunner{
		"python3": func(context.Context) ([]byte, error) {
			return []byte("True|NVIDIA GeForce RTX 4090\n"), nil
		},
	}
	p := newTestProber(t, config.ProbeConfig{FunctionalCommand: `python3 -c "print('x')"`}, r)

	status := p.Analyze(context.Background())
	if status.Tier != TierReady || !status.CanRunHeavy {
		t.Fatalf("status = %+v", status)
	}
	if status.Device != "NVIDIA GeForce RTX 4090" {
		t.Errorf("Device = %q", status.Device)
	}
}

func TestFunctional_Timeout(t *testing.T) {
	r := fakeRunner{
		"hang": func(ctx context.Context) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := newTestProber(t, config.ProbeConfig{FunctionalCommand: "hang", Timeout: 50 * time.Millisecond}, r)

	start := time.Now()
	f := p.Functional(context.Background())
	if time.Since(start) > 2*time.Second {
		t.Fatal("检测未在超时后返回")
	}
	if f.Available {
		t.Fatal("超时应视为不可用")
	}
	if apperr.KindOf(f.Err) != apperr.KindProbeTimeout {
		t.Fatalf("Err kind = %v, want probe_timeout (%v)", apperr.KindOf(f.Err), f.Err)
	}
}

func TestParseFunctional(t *testing.T) {
	tests := []struct {
		out       string
		available bool
		device    string
	}{
		{"True|Tesla T4\n", true, "Tesla T4"},
		{"False|None\n", false, ""},
		{"\nNVIDIA A10G\n", true, "NVIDIA A10G"},
		{"", false, ""},
	}
	for _, tt := range tests {
		f := parseFunctional([]byte(tt.out))
		if f.Available != tt.available || f.Device != tt.device {
			t.Errorf("parseFunctional(%q) = %+v", tt.out, f)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(Decide(Functional{}, ""))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"tier":"CPU_ONLY"`) {
		t.Errorf("json = %s", data)
	}
}

func TestDefaultPhysicalCommand(t *testing.T) {
	if cmd := defaultPhysicalCommand("windows"); len(cmd) == 0 || cmd[0] != "powershell" {
		t.Errorf("windows cmd = %v", cmd)
	}
	if cmd := defaultPhysicalCommand("plan9"); len(cmd) != 0 {
		t.Errorf("unsupported platform should have no command, got %v", cmd)
	}
}

func TestOnceCachesVerdict(t *testing.T) {
	calls := 0
	r := fakeRunner{
		"nvidia-smi": func(context.Context) ([]byte, error) {
			calls++
			return []byte("Tesla T4\n"), nil
		},
	}
	o := NewOnce(newTestProber(t, config.ProbeConfig{FunctionalCommand: "nvidia-smi"}, r))

	first := o.Status(context.Background())
	second := o.Status(context.Background())
	if first != second {
		t.Fatalf("结论不一致: %+v vs %+v", first, second)
	}
	if calls != 1 {
		t.Fatalf("功能检测执行了 %d 次，期望 1 次", calls)
	}
}
