// Package pipeline 按配置组装硬件检测、引擎管理、产物存储与 HTTP 服务。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iabetor/narrator/internal/artifact"
	"github.com/iabetor/narrator/internal/capability"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/database"
	"github.com/iabetor/narrator/internal/encode"
	"github.com/iabetor/narrator/internal/engine"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/server"
	"github.com/iabetor/narrator/internal/synth"
	"github.com/iabetor/narrator/internal/tts"
	"github.com/iabetor/narrator/internal/voice"
)

// Pipeline 持有全部组件。
type Pipeline struct {
	cfg *config.Config

	status  capability.Status
	voices  *voice.Registry
	manager *engine.Manager
	db      *database.DB
	store   *artifact.Store
	service *synth.Service
	sweeper *artifact.Sweeper
}

// New 根据配置创建并初始化完整的 Pipeline。
// 硬件检测在此同步完成，之后结论只读。
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}

	var err error

	// 音色表
	p.voices, err = voice.Builtin(cfg.Synth.DefaultVoice, voiceOverrides(cfg.Synth.Voices)...)
	if err != nil {
		return nil, fmt.Errorf("初始化音色表失败: %w", err)
	}

	// 硬件检测（进程生命周期内只做一次）
	prober, err := capability.NewProber(cfg.Probe)
	if err != nil {
		return nil, fmt.Errorf("初始化硬件检测失败: %w", err)
	}
	p.status = capability.NewOnce(prober).Status(ctx)

	// 引擎
	speakers := p.voices.SpeakerIDs()
	secondary, err := tts.NewSecondary(cfg.Secondary, speakers)
	if err != nil {
		return nil, fmt.Errorf("初始化重型后端失败: %w", err)
	}
	if secondary != nil && !p.status.CanRunHeavy {
		logger.Infof("[pipeline] 硬件不满足重型后端要求 (%s)，heavy 请求将使用轻量后端", p.status.Tier)
	}
	p.manager = engine.New(engine.Config{
		Primary: func() (tts.Primary, error) {
			return tts.NewPrimary(cfg.Primary, speakers)
		},
		Secondary:  secondary,
		Status:     p.status,
		RetryAfter: cfg.Secondary.RetryAfter,
	})

	// 产物索引（失败不阻止启动，文件系统仍可用）
	var index *artifact.Index
	if db, dbErr := database.Open(cfg.Storage.DBPath); dbErr != nil {
		logger.Warnf("[pipeline] 打开数据库失败（产物索引已禁用）: %v", dbErr)
	} else if dbErr := db.Migrate(); dbErr != nil {
		logger.Warnf("[pipeline] 数据库迁移失败（产物索引已禁用）: %v", dbErr)
		db.Close()
	} else {
		p.db = db
		index = artifact.NewIndex(db)
	}

	// 转码器
	opts := artifact.Options{
		OutputDir:    cfg.Storage.OutputDir,
		PreviewDir:   cfg.Storage.PreviewDir,
		Retention:    cfg.Storage.Retention,
		AlwaysEncode: cfg.Storage.AlwaysEncode,
		Index:        index,
	}
	if enc := encode.NewFFmpegEncoder(cfg.Storage.FFmpegBinary, cfg.Storage.MP3Bitrate); enc.Available() {
		opts.Encoder = enc
	} else {
		logger.Warnf("[pipeline] 未找到 %s，只生成 WAV", cfg.Storage.FFmpegBinary)
	}

	p.store, err = artifact.NewStore(opts)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("初始化产物存储失败: %w", err)
	}

	p.service = synth.NewService(p.manager, p.store, p.voices, cfg.Synth)

	logger.Info("[pipeline] 所有组件初始化完成")
	return p, nil
}

// voiceOverrides 把配置中的音色覆盖项按 ID 排序后转换为 voice.Override。
func voiceOverrides(voices map[string]config.VoiceConfig) []voice.Override {
	ids := make([]string, 0, len(voices))
	for id := range voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]voice.Override, 0, len(ids))
	for _, id := range ids {
		v := voices[id]
		out = append(out, voice.Override{
			ID:        id,
			Name:      v.Name,
			Gender:    v.Gender,
			Accent:    v.Accent,
			Style:     v.Style,
			Lang:      v.Lang,
			SpeakerID: v.SpeakerID,
		})
	}
	return out
}

// Status 返回硬件检测结论。
func (p *Pipeline) Status() capability.Status { return p.status }

// Service 返回合成服务。
func (p *Pipeline) Service() *synth.Service { return p.service }

// Store 返回产物存储。
func (p *Pipeline) Store() *artifact.Store { return p.store }

// Run 执行一次启动清理，启动后台清理任务并提供 HTTP 服务，直到 ctx 取消。
func (p *Pipeline) Run(ctx context.Context) error {
	p.store.Sweep(time.Now())

	p.sweeper = artifact.NewSweeper(p.store, p.cfg.Storage.SweepInterval)
	go p.sweeper.Run(ctx)
	defer func() {
		p.sweeper.Stop()
		<-p.sweeper.Done()
	}()

	srv := server.New(p.service, p.manager, p.store)
	logger.Infof("[pipeline] 已启动 (tier=%s)", p.status.Tier)
	return srv.ListenAndServe(ctx, p.cfg.Server.Addr)
}

// Close 释放所有资源。
func (p *Pipeline) Close() {
	logger.Info("[pipeline] 正在关闭...")

	var errs []error
	if p.manager != nil {
		errs = append(errs, p.manager.Close())
	}
	if p.db != nil {
		errs = append(errs, p.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warnf("[pipeline] 关闭时出错: %v", err)
	}

	logger.Info("[pipeline] 已关闭")
}
