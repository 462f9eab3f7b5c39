package tts

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Producer 惰性地产出一个片段。
type Producer func(ctx context.Context) (Segment, error)

// lazyStream 依次调用 producers，直到用尽、出错或被关闭。
type lazyStream struct {
	mu        sync.Mutex
	producers []Producer
	err       error
}

var errStreamClosed = errors.New("音频流已关闭")

// NewStream 用一组 producer 构造惰性流，producer 仅在 Next 时才被调用。
func NewStream(producers ...Producer) Stream {
	return &lazyStream{producers: producers}
}

// SegmentStream 将已生成的片段包装成流。
func SegmentStream(segs ...Segment) Stream {
	producers := make([]Producer, len(segs))
	for i, seg := range segs {
		seg := seg
		producers[i] = func(context.Context) (Segment, error) { return seg, nil }
	}
	return NewStream(producers...)
}

func (s *lazyStream) Next(ctx context.Context) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return Segment{}, s.err
	}
	if err := ctx.Err(); err != nil {
		s.terminate(err)
		return Segment{}, err
	}
	if len(s.producers) == 0 {
		s.err = io.EOF
		return Segment{}, io.EOF
	}

	next := s.producers[0]
	s.producers = s.producers[1:]
	seg, err := next(ctx)
	if err != nil {
		s.terminate(err)
		return Segment{}, err
	}
	return seg, nil
}

func (s *lazyStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.terminate(errStreamClosed)
	}
	return nil
}

// terminate 丢弃剩余 producer，之后的 Next 都返回 err。调用方需持有锁。
func (s *lazyStream) terminate(err error) {
	s.err = err
	s.producers = nil
}
