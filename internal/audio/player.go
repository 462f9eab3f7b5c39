package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/narrator/internal/logger"
)

// Player 通过 malgo (miniaudio) 在默认扬声器上播放单声道合成结果，
// 供命令行工具试听使用。
type Player struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewPlayer 初始化播放上下文。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// pcmCursor 按设备回调的节奏逐块吐出 PCM 数据，播完后补零并通知一次。
type pcmCursor struct {
	data []byte
	pos  int
	once sync.Once
	done chan struct{}
}

func (c *pcmCursor) fill(out []byte) {
	n := copy(out, c.data[c.pos:])
	c.pos += n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if c.pos >= len(c.data) {
		c.once.Do(func() { close(c.done) })
	}
}

// Play 播放样本，阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return fmt.Errorf("播放器已关闭")
	}

	cursor := &pcmCursor{data: Float32ToBytes(samples), done: make(chan struct{})}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			cursor.fill(output[:int(frameCount)*2])
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Infof("[audio] 播放被取消")
		return ctx.Err()
	case <-cursor.done:
		logger.Debugf("[audio] 播放完成 (%.2fs)", Duration(len(samples), sampleRate))
		return nil
	}
}

// Close 释放播放上下文。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return
	}
	_ = p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
}
