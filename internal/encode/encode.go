// Package encode 把原始 WAV 产物转码为压缩格式。
package encode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
)

// Encoder 将 rawPath 的音频转码写入 targetPath。
type Encoder interface {
	Encode(ctx context.Context, rawPath, targetPath string) error
}

// FFmpegEncoder 调用外部 ffmpeg 生成 MP3。
type FFmpegEncoder struct {
	binary  string
	bitrate string
}

// NewFFmpegEncoder 创建编码器，binary 为空时使用 PATH 中的 ffmpeg。
func NewFFmpegEncoder(binary, bitrate string) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpegEncoder{binary: binary, bitrate: bitrate}
}

// Available 检查 ffmpeg 是否可执行。
func (e *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// command 构建绑定到 ctx 的 ffmpeg 转码流。
func (e *FFmpegEncoder) command(ctx context.Context, rawPath, targetPath string, stderr io.Writer) *ffmpeg.Stream {
	return ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{ffmpeg.Input(rawPath)}, targetPath, ffmpeg.KwArgs{
		"c:a": "libmp3lame",
		"b:a": e.bitrate,
	}).
		OverWriteOutput().
		WithErrorOutput(stderr).
		SetFfmpegPath(e.binary).
		Silent(true)
}

// Encode 转码并校验输出可以被解码，校验失败时删除输出文件。
func (e *FFmpegEncoder) Encode(ctx context.Context, rawPath, targetPath string) error {
	start := time.Now()

	var stderr bytes.Buffer
	if err := e.command(ctx, rawPath, targetPath, &stderr).Run(); err != nil {
		os.Remove(targetPath)
		return fmt.Errorf("ffmpeg 转码失败: %w (%s)", err, lastLine(stderr.String()))
	}

	dur, err := audio.MP3Duration(targetPath)
	if err != nil || dur <= 0 {
		os.Remove(targetPath)
		if err == nil {
			err = fmt.Errorf("时长为 0")
		}
		return fmt.Errorf("转码输出无效: %w", err)
	}

	logger.Debugf("[encode] %s -> %s (%.2fs 音频) 耗时 %s",
		rawPath, targetPath, dur, time.Since(start).Round(time.Millisecond))
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
