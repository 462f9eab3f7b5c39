package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iabetor/narrator/internal/logger"
)

// SweepStats 一次清理的统计。
type SweepStats struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sweep 删除输出目录中修改时间早于 now-retention 的文件。
// 与并发写入或删除竞争导致的 ENOENT 视为正常，其他错误记录日志后跳过。
func (s *Store) Sweep(now time.Time) SweepStats {
	var stats SweepStats

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		logger.Warnf("[artifact] 读取输出目录失败: %v", err)
		stats.Failed++
		return stats
	}

	cutoff := now.Add(-s.retention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stats.Scanned++

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.Warnf("[artifact] 读取 %s 信息失败: %v", entry.Name(), err)
			stats.Failed++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		err = os.Remove(filepath.Join(s.outputDir, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.Warnf("[artifact] 删除过期文件 %s 失败: %v", entry.Name(), err)
			stats.Failed++
			continue
		}
		stats.Removed++
		s.indexRemove(context.Background(), entry.Name())
	}

	if stats.Removed > 0 || stats.Failed > 0 {
		logger.Infof("[artifact] 清理完成: 扫描 %d 个，删除 %d 个，失败 %d 个",
			stats.Scanned, stats.Removed, stats.Failed)
	}
	return stats
}

// Sweeper 周期性执行 Sweep，可随时停止。
type Sweeper struct {
	store    *Store
	interval time.Duration
	ticks    <-chan time.Time
	log      *zap.SugaredLogger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// SweeperOption 调整 Sweeper 行为。
type SweeperOption func(*Sweeper)

// WithTicks 用外部通道代替定时器，每收到一个时间点执行一次清理，以该时间点为当前时间。
func WithTicks(ch <-chan time.Time) SweeperOption {
	return func(s *Sweeper) { s.ticks = ch }
}

// NewSweeper 创建清理任务。
func NewSweeper(store *Store, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &Sweeper{
		store:    store,
		interval: interval,
		log:      logger.Named("sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 阻塞执行清理循环，直到 ctx 取消或调用 Stop。
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)

	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	s.log.Infof("清理任务已启动，间隔 %s，保留 %s", s.interval, s.store.retention)
	defer s.log.Info("清理任务已停止")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now, ok := <-ticks:
			if !ok {
				return
			}
			if stats := s.store.Sweep(now); stats.Failed > 0 {
				s.log.Warnf("本轮清理有 %d 个文件删除失败", stats.Failed)
			}
		}
	}
}

// Stop 通知清理循环退出，可重复调用。
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done 在 Run 返回后关闭。
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}
