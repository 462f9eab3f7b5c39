// Package synth 把一次合成请求拆成分段、逐段调用引擎、拼接并持久化。
package synth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/artifact"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/engine"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/segment"
	"github.com/iabetor/narrator/internal/voice"
)

// Generator 逐段合成音频，由 engine.Manager 实现。
type Generator interface {
	Generate(ctx context.Context, text, voice string, speed float32, tier engine.Tier) (engine.Result, error)
}

// Response 合成结果。
type Response struct {
	Raw        artifact.Record  `json:"raw"`
	Compressed *artifact.Record `json:"compressed,omitempty"`
	Duration   float64          `json:"duration"`
	Chunks     int              `json:"chunks"`
	Skipped    []int            `json:"skipped,omitempty"`
	Engines    []string         `json:"engines"`
}

// Service 合成服务。
type Service struct {
	gen    Generator
	store  *artifact.Store
	voices *voice.Registry
	cfg    config.SynthConfig

	// 同一时间只生成一个试听，避免同一音色重复合成
	previewMu sync.Mutex
}

// NewService 创建合成服务。
func NewService(gen Generator, store *artifact.Store, voices *voice.Registry, cfg config.SynthConfig) *Service {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = segment.DefaultMaxChars
	}
	return &Service{gen: gen, store: store, voices: voices, cfg: cfg}
}

// Voices 返回音色注册表。
func (s *Service) Voices() *voice.Registry { return s.voices }

// Synthesize 校验请求、逐段合成、拼接并写入产物。
// 默认任意分段失败都会使整个请求失败；配置 skip_failed_chunks 后跳过失败分段。
func (s *Service) Synthesize(ctx context.Context, req Request) (Response, error) {
	v, err := Validate(req, s.voices, s.cfg.MaxTextChars)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	chunks := segment.Segment(v.Text, s.cfg.MaxChars)
	logger.Infof("[synth] 开始合成: %d 字符，%d 段，voice=%s speed=%.2f tier=%s",
		utf8.RuneCountInString(v.Text), len(chunks), v.Voice, v.Speed, v.Tier)

	results := make([]ChunkResult, 0, len(chunks))
	engines := make(map[string]int)
	for _, c := range chunks {
		res, err := s.gen.Generate(ctx, c.Text, v.Voice, v.Speed, v.Tier)
		if err != nil {
			if !s.cfg.SkipFailedChunks {
				return Response{}, apperr.Generation(
					fmt.Sprintf("第 %d 段（共 %d 段）合成失败", c.Index+1, len(chunks)), err)
			}
			results = append(results, ChunkResult{Index: c.Index, Err: err})
			continue
		}
		engines[res.Engine] += c.Len
		results = append(results, ChunkResult{Index: c.Index, Segments: res.Segments})
		logger.Debugf("[synth] 第 %d/%d 段完成 (%s)", c.Index+1, len(chunks), res.Engine)
	}

	stitched, err := Stitch(results, s.cfg.SampleRate, s.cfg.SilenceMs)
	if err != nil {
		return Response{}, err
	}

	names := sortedKeys(engines)
	raw, compressed, err := s.store.Persist(ctx, stitched.Samples, stitched.SampleRate,
		artifact.Meta{Voice: v.Voice, Engine: strings.Join(names, "+")}, v.Compressed)
	if err != nil {
		return Response{}, err
	}
	for _, name := range names {
		if err := s.store.Index().RecordUsage(context.WithoutCancel(ctx), name, engines[name], time.Now()); err != nil {
			logger.Warnf("[synth] %v", err)
		}
	}

	logger.Infof("[synth] 合成完成: %s 时长 %.2fs，耗时 %s",
		raw.Filename, stitched.Duration, time.Since(start).Round(time.Millisecond))
	return Response{
		Raw:        raw,
		Compressed: compressed,
		Duration:   stitched.Duration,
		Chunks:     stitched.Chunks,
		Skipped:    stitched.Skipped,
		Engines:    names,
	}, nil
}

// Preview 返回音色试听文件，首次请求时用该音色的语言示例文本生成并缓存。
func (s *Service) Preview(ctx context.Context, voiceID string) (artifact.Record, error) {
	if !s.voices.Has(voiceID) {
		return artifact.Record{}, apperr.NotFound("未知音色: %s", voiceID)
	}
	if rec, ok := s.store.Preview(voiceID); ok {
		return rec, nil
	}

	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	if rec, ok := s.store.Preview(voiceID); ok {
		return rec, nil
	}

	res, err := s.gen.Generate(ctx, s.voices.PreviewText(voiceID), voiceID, 1.0, engine.TierStandard)
	if err != nil {
		return artifact.Record{}, err
	}
	stitched, err := Stitch([]ChunkResult{{Segments: res.Segments}}, s.cfg.SampleRate, 0)
	if err != nil {
		return artifact.Record{}, err
	}
	return s.store.PersistPreview(ctx, voiceID, stitched.Samples, stitched.SampleRate)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
