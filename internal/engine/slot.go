package engine

import (
	"context"
	"sync"
	"time"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/tts"
)

// LoadState 重型后端的加载状态。
type LoadState int

const (
	StateUnloaded LoadState = iota
	StateLoading
	StateReady
	StateFailed
)

var loadStateNames = [...]string{"unloaded", "loading", "ready", "failed"}

func (s LoadState) String() string {
	if int(s) < len(loadStateNames) {
		return loadStateNames[s]
	}
	return "unknown"
}

// MarshalText 以名称形式序列化。
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// slot 管理重型后端的按需加载。
// 同一时刻最多一个加载在进行，其他调用者等待 done 关闭。
type slot struct {
	backend    tts.Secondary
	retryAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    LoadState
	err      error
	failedAt time.Time
	done     chan struct{}
}

func newSlot(backend tts.Secondary, retryAfter time.Duration) *slot {
	return &slot{
		backend:    backend,
		retryAfter: retryAfter,
		now:        time.Now,
	}
}

// acquire 返回已加载的后端，必要时触发加载。
// 等待其他调用者的加载时遵守 ctx；加载本身不随 ctx 取消，避免留下半加载状态。
func (s *slot) acquire(ctx context.Context) (tts.Secondary, error) {
	s.mu.Lock()
	for {
		switch s.state {
		case StateReady:
			s.mu.Unlock()
			return s.backend, nil

		case StateLoading:
			done := s.done
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, apperr.BackendUnavailable("等待重型后端加载被取消", ctx.Err())
			}
			s.mu.Lock()

		case StateFailed:
			if s.retryAfter <= 0 || s.now().Sub(s.failedAt) < s.retryAfter {
				err := s.err
				s.mu.Unlock()
				return nil, apperr.BackendUnavailable("重型后端加载失败", err)
			}
			fallthrough

		case StateUnloaded:
			s.state = StateLoading
			s.done = make(chan struct{})
			s.mu.Unlock()

			start := time.Now()
			err := s.backend.Load(context.WithoutCancel(ctx))

			s.mu.Lock()
			if err != nil {
				s.state = StateFailed
				s.err = err
				s.failedAt = s.now()
				logger.Warnf("[engine] 重型后端 %s 加载失败: %v", s.backend.Name(), err)
			} else {
				s.state = StateReady
				s.err = nil
				logger.Infof("[engine] 重型后端 %s 加载完成，耗时 %s",
					s.backend.Name(), time.Since(start).Round(time.Millisecond))
			}
			close(s.done)
		}
	}
}

// reset 在已加载的后端退出后把状态退回 Unloaded，下次 acquire 重新加载。
func (s *slot) reset(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.state = StateUnloaded
	s.err = cause
	logger.Warnf("[engine] 重型后端 %s 已退出，下次请求时重新加载: %v", s.backend.Name(), cause)
}

func (s *slot) snapshot() (LoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

func (s *slot) close() error {
	s.mu.Lock()
	done := s.done
	loading := s.state == StateLoading
	s.mu.Unlock()
	if loading {
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnloaded
	return s.backend.Close()
}
