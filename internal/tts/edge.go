package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 作为在线轻量后端，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
type EdgeEngine struct {
	voices       map[string]string
	defaultVoice string
}

// NewEdgeEngine 创建 Edge TTS 引擎。voices 将内置音色 ID 映射到 Edge 音色名。
func NewEdgeEngine(voices map[string]string, defaultVoice string) *EdgeEngine {
	return &EdgeEngine{voices: voices, defaultVoice: defaultVoice}
}

// Name 实现 Primary 接口。
func (e *EdgeEngine) Name() string { return "edge" }

// Generate 返回单片段的惰性流，网络请求在第一次 Next 时发生。
// Edge 服务端不支持变速，speed 被忽略。
func (e *EdgeEngine) Generate(_ context.Context, text, voice string, _ float32) (Stream, error) {
	edgeVoice := e.defaultVoice
	if v, ok := e.voices[voice]; ok {
		edgeVoice = v
	}
	return NewStream(func(ctx context.Context) (Segment, error) {
		return e.synthesize(ctx, text, edgeVoice)
	}), nil
}

func (e *EdgeEngine) synthesize(ctx context.Context, text, voice string) (Segment, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return Segment{}, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Segment{}, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return Segment{}, ctx.Err()
		default:
		}
		// type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return Segment{}, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}

	samples, sampleRate, err := audio.DecodeMP3(mp3Buf.Bytes())
	if err != nil {
		return Segment{}, fmt.Errorf("[tts] edge-tts: %w", err)
	}

	logger.Debugf("[tts] edge-tts: 生成 %d 个单声道样本，采样率 %d Hz", len(samples), sampleRate)
	return Segment{Samples: samples, SampleRate: sampleRate}, nil
}

// Close 实现 Primary 接口。
func (e *EdgeEngine) Close() error { return nil }
