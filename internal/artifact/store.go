package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/encode"
	"github.com/iabetor/narrator/internal/logger"
)

// Options 产物存储配置。
type Options struct {
	OutputDir  string
	PreviewDir string
	// Retention 输出目录中文件的保留时长。
	Retention time.Duration
	// Encoder 为 nil 时只生成原始 WAV。
	Encoder encode.Encoder
	// AlwaysEncode 为 true 时不论请求格式都尝试生成压缩版本。
	AlwaysEncode bool
	Index        *Index
}

// Store 管理输出目录与试听缓存目录中的产物文件。
type Store struct {
	outputDir    string
	previewDir   string
	retention    time.Duration
	encoder      encode.Encoder
	alwaysEncode bool
	index        *Index
	now          func() time.Time
}

// NewStore 创建存储并确保目录存在。
func NewStore(opts Options) (*Store, error) {
	if opts.OutputDir == "" || opts.PreviewDir == "" {
		return nil, fmt.Errorf("输出目录与试听目录不能为空")
	}
	for _, dir := range []string{opts.OutputDir, opts.PreviewDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	return &Store{
		outputDir:    opts.OutputDir,
		previewDir:   opts.PreviewDir,
		retention:    retention,
		encoder:      opts.Encoder,
		alwaysEncode: opts.AlwaysEncode,
		index:        opts.Index,
		now:          time.Now,
	}, nil
}

// OutputDir 返回输出目录。
func (s *Store) OutputDir() string { return s.outputDir }

// Retention 返回保留时长。
func (s *Store) Retention() time.Duration { return s.retention }

// Index 返回元数据索引，可能为 nil。
func (s *Store) Index() *Index { return s.index }

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Persist 将拼接好的音频写入输出目录。
// 原始 WAV 写入失败是致命错误（KindIO）；压缩版本尽力而为，失败只记录日志并返回 nil。
func (s *Store) Persist(ctx context.Context, samples []float32, sampleRate int, meta Meta, compressed bool) (Record, *Record, error) {
	id := newID()
	raw := Record{
		ID:        id,
		Filename:  id + "." + string(FormatRaw),
		Format:    FormatRaw,
		Category:  CategoryOutput,
		Voice:     meta.Voice,
		Engine:    meta.Engine,
		Duration:  audio.Duration(len(samples), sampleRate),
		CreatedAt: s.now(),
	}
	raw.Path = filepath.Join(s.outputDir, raw.Filename)

	if err := audio.WriteWAV(raw.Path, samples, sampleRate); err != nil {
		return Record{}, nil, apperr.IO("写入音频文件失败", err)
	}
	raw.Size = fileSize(raw.Path)
	s.indexAdd(ctx, raw)
	logger.Infof("[artifact] 已保存 %s (%.2fs, %d 字节)", raw.Filename, raw.Duration, raw.Size)

	if s.encoder == nil || !(compressed || s.alwaysEncode) {
		return raw, nil, nil
	}

	enc := raw
	enc.Format = FormatCompressed
	enc.Filename = id + "." + string(FormatCompressed)
	enc.Path = filepath.Join(s.outputDir, enc.Filename)
	if err := s.encoder.Encode(ctx, raw.Path, enc.Path); err != nil {
		logger.Warnf("[artifact] %v，仅返回原始音频", apperr.Encoding("压缩版本生成失败", err))
		return raw, nil, nil
	}
	enc.Size = fileSize(enc.Path)
	s.indexAdd(ctx, enc)
	return raw, &enc, nil
}

// Delete 删除输出目录中的文件。文件名先校验再访问文件系统。
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if filepath.Base(name) != name {
		return apperr.Validation("非法文件名: %s", name)
	}

	p := filepath.Join(s.outputDir, name)
	info, err := os.Lstat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound("文件不存在: %s", name)
	case err != nil:
		return apperr.IO("读取文件信息失败", err)
	case !info.Mode().IsRegular():
		// 只删除普通文件，目录与符号链接一律拒绝
		return apperr.Validation("非法文件名: %s", name)
	}

	err = os.Remove(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound("文件不存在: %s", name)
	case err != nil:
		return apperr.IO("删除文件失败", err)
	}
	s.indexRemove(ctx, name)
	logger.Infof("[artifact] 已删除 %s", name)
	return nil
}

// Resolve 返回文件的完整路径，依次查找输出目录与试听目录。
func (s *Store) Resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	for _, dir := range []string{s.outputDir, s.previewDir} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", apperr.NotFound("文件不存在: %s", name)
}

func (s *Store) indexAdd(ctx context.Context, rec Record) {
	if err := s.index.Add(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("[artifact] %v", err)
	}
}

func (s *Store) indexRemove(ctx context.Context, name string) {
	if err := s.index.Remove(context.WithoutCancel(ctx), name); err != nil {
		logger.Warnf("[artifact] %v", err)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
