// Package engine 管理常驻轻量后端与按需加载的重型后端，并负责两者之间的回退。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/capability"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/tts"
)

var errEmptyAudio = errors.New("后端没有产出音频")

// PrimaryFactory 创建轻量后端。
type PrimaryFactory func() (tts.Primary, error)

// Config 引擎管理器配置。
type Config struct {
	// Primary 创建轻量后端，New 时立即调用一次，失败后在下次合成时重试。
	Primary PrimaryFactory
	// Secondary 为 nil 表示未配置重型后端。
	Secondary tts.Secondary
	// Status 启动时的硬件检测结论。
	Status capability.Status
	// RetryAfter 重型后端加载失败后的重试冷却时间，0 表示不再重试。
	RetryAfter time.Duration
}

// Result 一次成功合成的音频及其来源。
type Result struct {
	Segments []tts.Segment
	Source   Backend
	Engine   string
}

// State 引擎状态快照。
type State struct {
	Primary        string          `json:"primary"`
	PrimaryReady   bool            `json:"primary_ready"`
	Secondary      string          `json:"secondary,omitempty"`
	SecondaryState LoadState       `json:"secondary_state"`
	SecondaryError string          `json:"secondary_error,omitempty"`
	CanRunHeavy    bool            `json:"can_run_heavy"`
	Tier           capability.Tier `json:"tier"`
}

// Manager 在两个后端之间调度合成请求。
type Manager struct {
	status capability.Status
	log    *zap.SugaredLogger

	mu         sync.Mutex
	newPrimary PrimaryFactory
	primary    tts.Primary

	secondary *slot
}

// New 创建引擎管理器并立即加载轻量后端。
// 轻量后端加载失败只记录日志，不阻止启动。
func New(cfg Config) *Manager {
	m := &Manager{
		status:     cfg.Status,
		log:        logger.Named("engine"),
		newPrimary: cfg.Primary,
	}
	if cfg.Secondary != nil {
		m.secondary = newSlot(cfg.Secondary, cfg.RetryAfter)
	}
	if _, err := m.primaryEngine(); err != nil {
		m.log.Warnf("轻量后端加载失败，将在首次合成时重试: %v", err)
	}
	return m
}

func (m *Manager) primaryEngine() (tts.Primary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.primary != nil {
		return m.primary, nil
	}
	if m.newPrimary == nil {
		return nil, apperr.BackendUnavailable("未配置轻量后端", nil)
	}
	p, err := m.newPrimary()
	if err != nil {
		return nil, apperr.BackendUnavailable("轻量后端加载失败", err)
	}
	m.primary = p
	m.log.Infof("轻量后端 %s 已就绪", p.Name())
	return p, nil
}

// Generate 合成一段文本。
// tier=heavy 且硬件允许时先尝试重型后端，任何失败（加载失败、推理出错、无输出）都回退到轻量后端。
// 两者都失败时返回 KindGeneration 错误。
func (m *Manager) Generate(ctx context.Context, text, voice string, speed float32, tier Tier) (Result, error) {
	var (
		res    Result
		causes []error
	)

	step := Plan(tier, m.status.CanRunHeavy)
	for {
		var err error
		switch step {
		case StepSecondary:
			res, err = m.runSecondary(ctx, text, voice, speed)
			if err != nil {
				m.log.Warnf("重型后端合成失败，回退到轻量后端: %v", err)
			}
			step = Next(Outcome{Backend: BackendSecondary, Err: err})

		case StepPrimary:
			res, err = m.runPrimary(ctx, text, voice, speed)
			step = Next(Outcome{Backend: BackendPrimary, Err: err})

		case StepDone:
			return res, nil

		default:
			return Result{}, apperr.Generation("所有后端均合成失败", errors.Join(causes...))
		}
		if err != nil {
			causes = append(causes, err)
		}
	}
}

func (m *Manager) runSecondary(ctx context.Context, text, voice string, speed float32) (Result, error) {
	if m.secondary == nil {
		return Result{}, apperr.BackendUnavailable("未配置重型后端", nil)
	}
	backend, err := m.secondary.acquire(ctx)
	if err != nil {
		return Result{}, err
	}

	seg, ok, err := backend.Infer(ctx, text, voice, speed)
	if err != nil {
		if errors.Is(err, tts.ErrBackendGone) {
			m.secondary.reset(err)
		}
		return Result{}, fmt.Errorf("%s: %w", backend.Name(), err)
	}
	if !ok || seg.Empty() {
		return Result{}, fmt.Errorf("%s: %w", backend.Name(), errEmptyAudio)
	}
	return Result{Segments: []tts.Segment{seg}, Source: BackendSecondary, Engine: backend.Name()}, nil
}

func (m *Manager) runPrimary(ctx context.Context, text, voice string, speed float32) (Result, error) {
	backend, err := m.primaryEngine()
	if err != nil {
		return Result{}, err
	}

	stream, err := backend.Generate(ctx, text, voice, speed)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", backend.Name(), err)
	}
	segs, err := tts.Collect(ctx, stream)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", backend.Name(), err)
	}
	if len(segs) == 0 {
		return Result{}, fmt.Errorf("%s: %w", backend.Name(), errEmptyAudio)
	}
	return Result{Segments: segs, Source: BackendPrimary, Engine: backend.Name()}, nil
}

// Status 返回启动时的硬件检测结论。
func (m *Manager) Status() capability.Status {
	return m.status
}

// State 返回当前引擎状态。
func (m *Manager) State() State {
	s := State{
		CanRunHeavy: m.status.CanRunHeavy,
		Tier:        m.status.Tier,
	}

	m.mu.Lock()
	if m.primary != nil {
		s.Primary = m.primary.Name()
		s.PrimaryReady = true
	}
	m.mu.Unlock()

	if m.secondary != nil {
		s.Secondary = m.secondary.backend.Name()
		state, err := m.secondary.snapshot()
		s.SecondaryState = state
		if err != nil {
			s.SecondaryError = err.Error()
		}
	}
	return s
}

// Close 释放所有后端。
func (m *Manager) Close() error {
	var errs []error
	if m.secondary != nil {
		if err := m.secondary.close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary != nil {
		if err := m.primary.Close(); err != nil {
			errs = append(errs, err)
		}
		m.primary = nil
	}
	return errors.Join(errs...)
}
