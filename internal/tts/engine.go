package tts

import (
	"context"
	"errors"
	"io"

	"github.com/iabetor/narrator/internal/audio"
)

// ErrBackendGone 表示后端进程已退出，需要重新 Load 才能继续使用。
var ErrBackendGone = errors.New("后端进程已退出")

// Segment 是一次后端调用产生的原始音频。
type Segment struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回片段时长（秒）。
func (s Segment) Duration() float64 {
	return audio.Duration(len(s.Samples), s.SampleRate)
}

// Empty 判断片段是否不含任何样本。
func (s Segment) Empty() bool {
	return len(s.Samples) == 0
}

// Stream 是惰性、有限、不可重启的音频片段序列。
// Next 在序列结束时返回 io.EOF；任意错误都会终止序列，之后的调用返回同一错误。
type Stream interface {
	Next(ctx context.Context) (Segment, error)
	Close() error
}

// Primary 常驻的轻量后端，可能以流式方式逐段产出音频。
type Primary interface {
	Name() string
	// Generate 为文本创建音频流；未知音色等错误可能在创建时或 Next 时返回。
	Generate(ctx context.Context, text, voice string, speed float32) (Stream, error)
	Close() error
}

// Secondary 按需加载的重型后端，每次调用返回一个完整片段。
type Secondary interface {
	Name() string
	// Load 一次性加载模型，依赖或权重缺失时返回错误。
	Load(ctx context.Context) error
	// Infer 合成整段文本；ok=false 表示后端没有产出音频。
	Infer(ctx context.Context, text, voice string, speed float32) (seg Segment, ok bool, err error)
	Close() error
}

// Collect 读完整个流并关闭它。
func Collect(ctx context.Context, s Stream) ([]Segment, error) {
	defer s.Close()

	var segs []Segment
	for {
		seg, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return segs, nil
		}
		if err != nil {
			return segs, err
		}
		if !seg.Empty() {
			segs = append(segs, seg)
		}
	}
}
