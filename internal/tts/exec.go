package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
)

// ExecEngine 通过常驻工作进程运行外部重型模型（例如 Python 实现的扩散模型）。
// 协议为 stdin/stdout 上的逐行 JSON：
//
//	→ {"op":"load"}                                   ← {"ready":true} 或 {"error":"..."}
//	→ {"op":"infer","text":..,"voice":..,"speed":..}  ← {"pcm_base64":..,"sample_rate":..} 或 {"error":"..."}
//
// pcm_base64 为 signed 16-bit LE 单声道 PCM，为空表示没有产出音频。
type ExecEngine struct {
	args []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

type workerRequest struct {
	Op    string  `json:"op"`
	Text  string  `json:"text,omitempty"`
	Voice string  `json:"voice,omitempty"`
	Speed float32 `json:"speed,omitempty"`
}

type workerResponse struct {
	Ready      bool   `json:"ready"`
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error"`
}

// NewExecEngine 解析工作进程命令行。
func NewExecEngine(command string) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("[tts] 解析工作进程命令失败: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("[tts] 工作进程命令为空")
	}
	return &ExecEngine{args: args}, nil
}

// Name 实现 Secondary 接口。
func (e *ExecEngine) Name() string { return "exec:" + e.args[0] }

// Load 启动工作进程并等待它报告模型就绪。
func (e *ExecEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return nil
	}

	// 工作进程的生命周期独立于本次加载请求
	cmd := exec.Command(e.args[0], e.args[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("[tts] 创建工作进程 stdin 失败: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("[tts] 创建工作进程 stdout 失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("[tts] 启动工作进程失败: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewReaderSize(stdout, 1<<20)

	resp, err := e.roundTripLocked(ctx, workerRequest{Op: "load"})
	if err == nil && !resp.Ready {
		err = fmt.Errorf("[tts] 工作进程未就绪: %s", resp.Error)
	}
	if err != nil {
		e.killLocked()
		return err
	}

	logger.Infof("[tts] 工作进程已就绪: %v (pid=%d)", e.args, cmd.Process.Pid)
	return nil
}

// Infer 实现 Secondary 接口。
func (e *ExecEngine) Infer(ctx context.Context, text, voice string, speed float32) (Segment, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return Segment{}, false, fmt.Errorf("[tts] 工作进程未启动: %w", ErrBackendGone)
	}

	resp, err := e.roundTripLocked(ctx, workerRequest{Op: "infer", Text: text, Voice: voice, Speed: speed})
	if err != nil {
		return Segment{}, false, err
	}
	if resp.Error != "" {
		return Segment{}, false, fmt.Errorf("[tts] 工作进程合成失败: %s", resp.Error)
	}
	if resp.PCMBase64 == "" {
		return Segment{}, false, nil
	}

	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Segment{}, false, fmt.Errorf("[tts] 解码工作进程音频失败: %w", err)
	}
	samples := audio.BytesToFloat32(pcm)
	if len(samples) == 0 {
		return Segment{}, false, nil
	}
	return Segment{Samples: samples, SampleRate: resp.SampleRate}, true, nil
}

// roundTripLocked 发送一行请求并读取一行响应。ctx 取消或进程退出时杀掉工作进程，
// 返回的错误包装 ErrBackendGone，下次 Load 会重新启动。调用方需持有锁。
func (e *ExecEngine) roundTripLocked(ctx context.Context, req workerRequest) (workerResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return workerResponse{}, err
	}
	if _, err := e.stdin.Write(append(data, '\n')); err != nil {
		e.killLocked()
		return workerResponse{}, fmt.Errorf("[tts] 写入工作进程失败: %v: %w", err, ErrBackendGone)
	}

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	reader := e.stdout
	go func() {
		line, err := reader.ReadBytes('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		e.killLocked()
		return workerResponse{}, fmt.Errorf("[tts] 等待工作进程响应被取消: %w (%w)", ctx.Err(), ErrBackendGone)
	case r := <-ch:
		if r.err != nil && len(r.line) == 0 {
			e.killLocked()
			return workerResponse{}, fmt.Errorf("[tts] 读取工作进程响应失败: %v: %w", r.err, ErrBackendGone)
		}
		var resp workerResponse
		if err := json.Unmarshal(r.line, &resp); err != nil {
			return workerResponse{}, fmt.Errorf("[tts] 解析工作进程响应失败: %w", err)
		}
		return resp, nil
	}
}

func (e *ExecEngine) killLocked() {
	if e.cmd == nil {
		return
	}
	e.stdin.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	_ = e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
}

// Close 结束工作进程。
func (e *ExecEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killLocked()
	return nil
}
