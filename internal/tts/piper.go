package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperEngine 使用 piper CLI 子进程实现离线轻量合成。
// piper 模型为单说话人，voice 参数被忽略。
type PiperEngine struct {
	binary    string
	modelPath string
}

// NewPiperEngine 创建指定模型的 Piper TTS 引擎。
func NewPiperEngine(binary, modelPath string) *PiperEngine {
	return &PiperEngine{binary: binary, modelPath: modelPath}
}

// Name 实现 Primary 接口。
func (p *PiperEngine) Name() string { return "piper" }

// Generate 返回单片段的惰性流，子进程在第一次 Next 时启动。
func (p *PiperEngine) Generate(_ context.Context, text, _ string, speed float32) (Stream, error) {
	return NewStream(func(ctx context.Context) (Segment, error) {
		return p.synthesize(ctx, text, speed)
	}), nil
}

func (p *PiperEngine) args(speed float32) []string {
	args := []string{"--model", p.modelPath, "--output-raw"}
	if speed > 0 && speed != 1 {
		// piper 用 length_scale 控制语速，数值越大越慢
		args = append(args, "--length_scale", strconv.FormatFloat(float64(1/speed), 'f', 3, 32))
	}
	return args
}

func (p *PiperEngine) synthesize(ctx context.Context, text string, speed float32) (Segment, error) {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)

	cmd := exec.CommandContext(ctx, p.binary, p.args(speed)...)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return Segment{}, fmt.Errorf("[tts] piper 执行失败: %w", err)
	}

	if stdout.Len() == 0 {
		return Segment{}, fmt.Errorf("[tts] piper: 未收到音频数据")
	}

	samples := audio.BytesToFloat32(stdout.Bytes())
	logger.Debugf("[tts] piper: 生成 %d 个单声道样本", len(samples))
	return Segment{Samples: samples, SampleRate: piperSampleRate}, nil
}

// Close 实现 Primary 接口。
func (p *PiperEngine) Close() error { return nil }
