package synth

import (
	"fmt"
	"time"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/tts"
)

// ChunkResult 一个文本分段的合成结果，Err 非 nil 表示该段失败。
type ChunkResult struct {
	Index    int
	Segments []tts.Segment
	Err      error
}

// Audio 拼接后的完整音频。
type Audio struct {
	Samples    []float32
	SampleRate int
	// Duration 秒，等于 len(Samples)/SampleRate。
	Duration float64
	// Chunks 成功拼接的分段数。
	Chunks int
	// Skipped 被跳过的失败分段序号。
	Skipped []int
}

// Stitch 按顺序拼接成功分段，相邻成功分段之间插入 silenceMs 毫秒静音。
// 采样率与目标不一致的片段先重采样。失败分段记录警告后跳过；
// 没有任何成功分段时返回 KindGeneration 错误。
func Stitch(results []ChunkResult, sampleRate, silenceMs int) (Audio, error) {
	out := Audio{SampleRate: sampleRate}
	silence := audio.Silence(sampleRate, time.Duration(silenceMs)*time.Millisecond)

	var lastErr error
	for _, r := range results {
		if r.Err != nil || !hasAudio(r.Segments) {
			err := r.Err
			if err == nil {
				err = fmt.Errorf("没有音频")
			}
			logger.Warnf("[synth] 第 %d 段合成失败，已跳过: %v", r.Index+1, err)
			out.Skipped = append(out.Skipped, r.Index)
			lastErr = err
			continue
		}

		if out.Chunks > 0 {
			out.Samples = append(out.Samples, silence...)
		}
		for _, seg := range r.Segments {
			samples := seg.Samples
			if seg.SampleRate != sampleRate {
				samples = audio.Resample(samples, seg.SampleRate, sampleRate)
			}
			out.Samples = append(out.Samples, samples...)
		}
		out.Chunks++
	}

	if out.Chunks == 0 {
		return Audio{}, apperr.Generation("没有任何分段合成成功", lastErr)
	}
	out.Duration = audio.Duration(len(out.Samples), sampleRate)
	return out, nil
}

func hasAudio(segs []tts.Segment) bool {
	for _, s := range segs {
		if !s.Empty() {
			return true
		}
	}
	return false
}
