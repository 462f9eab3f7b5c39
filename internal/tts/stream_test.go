package tts

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestStreamIsLazy(t *testing.T) {
	calls := 0
	p := func(context.Context) (Segment, error) {
		calls++
		return Segment{Samples: []float32{0.1}, SampleRate: 24000}, nil
	}
	s := NewStream(p, p, p)
	if calls != 0 {
		t.Fatalf("构造流时不应调用 producer，calls=%d", calls)
	}

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("一次 Next 应只调用一次 producer，calls=%d", calls)
	}
}

func TestStreamTerminatesOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	ok := func(context.Context) (Segment, error) {
		calls++
		return Segment{Samples: []float32{0}, SampleRate: 1}, nil
	}
	bad := func(context.Context) (Segment, error) { return Segment{}, boom }

	s := NewStream(ok, bad, ok)
	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, boom) {
		t.Fatalf("期望 boom，得到 %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, boom) {
		t.Fatalf("出错后应持续返回同一错误，得到 %v", err)
	}
	if calls != 1 {
		t.Fatalf("出错后不应继续调用剩余 producer，calls=%d", calls)
	}
}

func TestStreamEOFAndNotRestartable(t *testing.T) {
	s := SegmentStream(Segment{Samples: []float32{1}, SampleRate: 1})
	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
			t.Fatalf("期望 io.EOF，得到 %v", err)
		}
	}
}

func TestStreamClose(t *testing.T) {
	s := SegmentStream(Segment{Samples: []float32{1}, SampleRate: 1})
	s.Close()
	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("关闭后 Next 应返回错误")
	}
}

func TestCollectSkipsEmptySegments(t *testing.T) {
	s := SegmentStream(
		Segment{Samples: []float32{1, 2}, SampleRate: 1},
		Segment{SampleRate: 1},
		Segment{Samples: []float32{3}, SampleRate: 1},
	)
	segs, err := Collect(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("期望 2 个非空片段，得到 %d", len(segs))
	}
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, SegmentStream(Segment{Samples: []float32{1}, SampleRate: 1}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，得到 %v", err)
	}
}
