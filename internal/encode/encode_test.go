package encode

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"
)

func TestFFmpegArgs(t *testing.T) {
	e := NewFFmpegEncoder("", "128k")
	args := e.command(context.Background(), "in.wav", "out.mp3", io.Discard).GetArgs()

	for _, want := range []string{"-i", "in.wav", "out.mp3", "-y", "-b:a", "128k", "libmp3lame"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v 缺少 %q", args, want)
		}
	}
}

func writeFakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("需要 sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEncodeFailureRemovesTarget(t *testing.T) {
	bin := writeFakeFFmpeg(t, `echo "Unknown encoder 'libmp3lame'" >&2; exit 1`)
	target := filepath.Join(t.TempDir(), "out.mp3")
	os.WriteFile(target, []byte("stale"), 0644)

	err := NewFFmpegEncoder(bin, "192k").Encode(context.Background(), "in.wav", target)
	if err == nil {
		t.Fatal("期望转码失败")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatalf("失败后应删除输出文件: %v", statErr)
	}
}

func TestEncodeRejectsUndecodableOutput(t *testing.T) {
	// 把乱码写到最后一个非选项参数（输出路径）
	bin := writeFakeFFmpeg(t, `for a in "$@"; do case "$a" in *.mp3) out="$a";; esac; done; echo garbage > "$out"`)
	target := filepath.Join(t.TempDir(), "out.mp3")

	err := NewFFmpegEncoder(bin, "192k").Encode(context.Background(), "in.wav", target)
	if err == nil {
		t.Fatal("无法解码的输出应视为失败")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("无效输出应被删除")
	}
}

func TestAvailable(t *testing.T) {
	if NewFFmpegEncoder(filepath.Join(t.TempDir(), "nope"), "").Available() {
		t.Fatal("不存在的可执行文件不应可用")
	}
}

func TestEncodeHonoursContext(t *testing.T) {
	bin := writeFakeFFmpeg(t, `exec sleep 30`)
	target := filepath.Join(t.TempDir(), "out.mp3")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := NewFFmpegEncoder(bin, "192k").Encode(ctx, "in.wav", target); err == nil {
		t.Fatal("超时应返回错误")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("ctx 超时后应终止 ffmpeg 进程")
	}
}
